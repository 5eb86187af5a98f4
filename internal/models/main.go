// Package models defines the core data structures shared by the member
// client and the backend: identities, credentials, token pairs and content
// records.
package models

import (
	"errors"
	"time"
)

// Storage-level sentinels returned by repositories.
var (
	// ErrNotFound means no row matched.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate means a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate")
)

// Identity is the authenticated member as reported by the backend.
type Identity struct {
	// ID is the unique identifier of the member.
	ID int64 `json:"id"`
	// Email is the login address of the member.
	Email string `json:"email"`
	// FirstName is the member's given name.
	FirstName string `json:"first_name,omitempty"`
	// LastName is the member's family name.
	LastName string `json:"last_name,omitempty"`
	// IsStaff marks members of the consulting team.
	IsStaff bool `json:"is_staff"`
	// IsSuperuser marks site owners.
	IsSuperuser bool `json:"is_superuser"`
	// DateJoined is the registration timestamp.
	DateJoined time.Time `json:"date_joined"`
}

// IsAdmin reports whether the identity may see admin-gated sections.
func (i Identity) IsAdmin() bool {
	return i.IsStaff || i.IsSuperuser
}

// User is the server-side member record.
type User struct {
	Identity
	// PasswordHash is the bcrypt hash of the member's password.
	PasswordHash string `json:"-"`
}

// Credentials is the payload for signing in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp is the payload for registering a new member.
type SignUp struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TokenPair is the access/refresh credential persisted on the client.
type TokenPair struct {
	// Access is the short-lived bearer token.
	Access string `json:"access,omitempty"`
	// Refresh is the long-lived token used to rotate Access.
	Refresh string `json:"refresh,omitempty"`
}

// HasAccess reports whether an access token is present. Presence does not
// imply validity.
func (p TokenPair) HasAccess() bool {
	return p.Access != ""
}

// Record is a content entity in a named collection.
type Record struct {
	// ID is the unique identifier within the backend.
	ID int64 `json:"id"`
	// AuthorID is the owning member, nil for anonymous submissions.
	AuthorID *int64 `json:"author_id,omitempty"`
	// Fields holds the collection-specific attributes.
	Fields map[string]any `json:"fields"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last modification timestamp.
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the record belongs to the given member.
func (r Record) OwnedBy(userID int64) bool {
	return r.AuthorID != nil && *r.AuthorID == userID
}

// Post is a blog post record.
type Post = Record

// Collection names a resource group exposed through uniform CRUD.
type Collection string

const (
	// Posts holds blog posts.
	Posts Collection = "posts"
	// Resources holds downloadable guides and links.
	Resources Collection = "resources"
	// CaseStudies holds client case studies.
	CaseStudies Collection = "case_studies"
	// Projects holds portfolio projects.
	Projects Collection = "projects"
	// Logs holds internal activity log entries.
	Logs Collection = "logs"
	// Leads holds contact and newsletter form submissions.
	Leads Collection = "leads"
)

// Collections lists every collection the backend serves.
var Collections = []Collection{Posts, Resources, CaseStudies, Projects, Logs, Leads}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// PublicRead reports whether anonymous visitors may list the collection.
func (c Collection) PublicRead() bool {
	switch c {
	case Posts, Resources, CaseStudies, Projects:
		return true
	}
	return false
}

// PublicCreate reports whether anonymous visitors may add records.
func (c Collection) PublicCreate() bool {
	return c == Leads
}

// ListQuery narrows and orders a collection listing.
type ListQuery struct {
	// Ordering is a field name, prefixed with "-" for descending order.
	Ordering string
	// Limit caps the number of records returned.
	Limit int
	// Offset skips records for pagination.
	Offset int
	// AuthorID keeps only records by this member when set.
	AuthorID *int64
}
