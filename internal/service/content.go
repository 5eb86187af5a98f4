package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"

	"github.com/atinyakov/consultdesk/internal/models"
)

// ContentRepository defines the persistence operations needed by the
// ContentService.
type ContentRepository interface {
	List(ctx context.Context, c models.Collection, q models.ListQuery) ([]models.Record, error)
	Get(ctx context.Context, c models.Collection, id int64) (*models.Record, error)
	Create(ctx context.Context, c models.Collection, authorID *int64, fields map[string]any) (*models.Record, error)
	Update(ctx context.Context, c models.Collection, id int64, patch map[string]any) (*models.Record, error)
	Delete(ctx context.Context, c models.Collection, id int64) error
}

const (
	// DefaultLimit applies when a listing does not ask for a page size.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 200
)

// requiredFields lists the field each collection cannot do without.
var requiredFields = map[models.Collection]string{
	models.Posts:       "title",
	models.Resources:   "title",
	models.CaseStudies: "title",
	models.Projects:    "name",
	models.Logs:        "message",
	models.Leads:       "email",
}

var orderingPattern = regexp.MustCompile(`^-?[a-z][a-z0-9_]{0,63}$`)

// ContentService enforces who may read and change records.
type ContentService struct {
	repo ContentRepository
}

// NewContentService constructs a ContentService.
func NewContentService(repo ContentRepository) *ContentService {
	return &ContentService{repo: repo}
}

func collection(name string) (models.Collection, error) {
	c := models.Collection(name)
	if !c.Valid() {
		return "", ErrNotFound
	}
	return c, nil
}

// canRead reports whether actor may read c. A nil actor is an anonymous
// visitor.
func canRead(c models.Collection, actor *models.Identity) error {
	switch {
	case c.PublicRead():
		return nil
	case actor == nil:
		return ErrUnauthenticated
	case !actor.IsAdmin():
		return ErrForbidden
	}
	return nil
}

// canModify reports whether actor may update or delete rec.
func canModify(c models.Collection, rec *models.Record, actor *models.Identity) error {
	switch {
	case actor == nil:
		return ErrUnauthenticated
	case actor.IsAdmin():
		return nil
	case c == models.Leads:
		return ErrForbidden
	case !rec.OwnedBy(actor.ID):
		return ErrForbidden
	}
	return nil
}

func normalizeQuery(q models.ListQuery) (models.ListQuery, error) {
	v := &ValidationError{Message: "invalid query"}
	if q.Ordering != "" && !orderingPattern.MatchString(q.Ordering) {
		v.add("ordering", "must be a field name, optionally prefixed with -")
	}
	if q.Limit < 0 {
		v.add("limit", "must not be negative")
	}
	if q.Offset < 0 {
		v.add("offset", "must not be negative")
	}
	if err := v.orNil(); err != nil {
		return q, err
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q, nil
}

func validateFields(c models.Collection, fields map[string]any, creating bool) error {
	v := &ValidationError{Message: "invalid " + string(c) + " record"}
	if len(fields) == 0 {
		v.add("fields", "at least one field is required")
		return v
	}

	key := requiredFields[c]
	val, present := fields[key]
	if creating && !present {
		v.add(key, "required")
	}
	if present {
		s, ok := val.(string)
		switch {
		case !ok || s == "":
			v.add(key, "must be a non-empty string")
		case c == models.Leads:
			if _, err := mail.ParseAddress(s); err != nil {
				v.add(key, "not a valid email address")
			}
		}
	}
	return v.orNil()
}

// List returns records of a collection, newest first unless ordered
// otherwise.
func (s *ContentService) List(ctx context.Context, actor *models.Identity, name string, q models.ListQuery) ([]models.Record, error) {
	c, err := collection(name)
	if err != nil {
		return nil, err
	}
	if err := canRead(c, actor); err != nil {
		return nil, err
	}
	q, err = normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, c, q)
}

// Get returns one record.
func (s *ContentService) Get(ctx context.Context, actor *models.Identity, name string, id int64) (*models.Record, error) {
	c, err := collection(name)
	if err != nil {
		return nil, err
	}
	if err := canRead(c, actor); err != nil {
		return nil, err
	}
	return s.get(ctx, c, id)
}

// Create stores a new record authored by actor. Leads may be created
// anonymously.
func (s *ContentService) Create(ctx context.Context, actor *models.Identity, name string, fields map[string]any) (*models.Record, error) {
	c, err := collection(name)
	if err != nil {
		return nil, err
	}
	if actor == nil && !c.PublicCreate() {
		return nil, ErrUnauthenticated
	}
	if err := validateFields(c, fields, true); err != nil {
		return nil, err
	}

	var author *int64
	if actor != nil {
		id := actor.ID
		author = &id
	}
	return s.repo.Create(ctx, c, author, fields)
}

// Update merges patch into a record owned by actor, or any record for
// admins.
func (s *ContentService) Update(ctx context.Context, actor *models.Identity, name string, id int64, patch map[string]any) (*models.Record, error) {
	c, err := collection(name)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	rec, err := s.get(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if err := canModify(c, rec, actor); err != nil {
		return nil, err
	}
	if err := validateFields(c, patch, false); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, c, id, patch)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	return updated, err
}

// Delete removes a record owned by actor, or any record for admins.
func (s *ContentService) Delete(ctx context.Context, actor *models.Identity, name string, id int64) error {
	c, err := collection(name)
	if err != nil {
		return err
	}
	if actor == nil {
		return ErrUnauthenticated
	}
	rec, err := s.get(ctx, c, id)
	if err != nil {
		return err
	}
	if err := canModify(c, rec, actor); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, c, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *ContentService) get(ctx context.Context, c models.Collection, id int64) (*models.Record, error) {
	rec, err := s.repo.Get(ctx, c, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%d: %w", c, id, err)
	}
	return rec, nil
}
