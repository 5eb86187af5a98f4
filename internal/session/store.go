// Package session holds the member client's authoritative view of who is
// signed in. A Store is built once at startup and handed to every command
// that needs it.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/models"
	"github.com/atinyakov/consultdesk/internal/remote"
)

var (
	// ErrSignedOut is returned by SignIn when SignOut ran while it was in
	// flight. The freshly issued tokens are discarded.
	ErrSignedOut = errors.New("signed out while signing in")
	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("session store closed")
)

// Remote is the subset of the API client the store depends on.
type Remote interface {
	Register(ctx context.Context, profile models.SignUp) error
	Login(ctx context.Context, creds models.Credentials) (models.TokenPair, error)
	Logout()
	CurrentUser(ctx context.Context) (*models.Identity, error)
	Update(ctx context.Context, collection models.Collection, id int64, patch map[string]any) (*models.Record, error)
	Remove(ctx context.Context, collection models.Collection, id int64) error
}

// TokenReader exposes the persisted token pair.
type TokenReader interface {
	Load() models.TokenPair
}

// Snapshot is a read-only copy of the store state.
type Snapshot struct {
	// Session is the signed-in identity, nil when anonymous or unknown.
	Session *models.Identity
	// IsAdmin is true for staff and superusers.
	IsAdmin bool
	// Loading is true until the first refresh settles and while any call is
	// waiting on the network.
	Loading bool
}

// Store is the session state machine.
type Store struct {
	remote Remote
	tokens TokenReader
	log    *zap.Logger

	mu         sync.Mutex
	session    *models.Identity
	isAdmin    bool
	ready      bool
	inflight   int
	generation uint64
	closed     bool
	listeners  map[uint64]func(Snapshot)
	nextID     uint64
}

// New creates a store in the unknown state. Call Refresh to resolve it.
func New(r Remote, tokens TokenReader, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		remote:    r,
		tokens:    tokens,
		log:       log,
		listeners: make(map[uint64]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every state transition. The
// returned func removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close drops all listeners. Results of calls that settle afterwards are
// discarded.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = nil
	s.mu.Unlock()
}

// Refresh resolves the session from the stored access token.
//
// Errors are not returned: whatever went wrong while asking the backend who
// we are, the answer is that nobody is signed in. Auth failures are routine
// (expired token) and logged at debug; transport failures at warn.
func (s *Store) Refresh(ctx context.Context) {
	if !s.tokens.Load().HasAccess() {
		s.update(func() {
			s.clearLocked()
			s.ready = true
		})
		return
	}

	gen, err := s.begin()
	if err != nil {
		return
	}
	s.settle(gen, s.resolve(ctx))
}

// SignUp registers a new member. The session is left untouched.
func (s *Store) SignUp(ctx context.Context, profile models.SignUp) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	err = s.remote.Register(ctx, profile)
	s.settle(gen, nil)
	return err
}

// SignIn logs in and then resolves the session from the new token. A login
// failure leaves the session as it was. A failure to resolve the identity
// after a successful login leaves the member anonymous and is not an error.
func (s *Store) SignIn(ctx context.Context, creds models.Credentials) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}

	if _, err := s.remote.Login(ctx, creds); err != nil {
		s.settle(gen, nil)
		return err
	}

	if s.stale(gen) {
		s.remote.Logout()
		s.settle(gen, nil)
		return ErrSignedOut
	}

	if stale := s.settle(gen, s.resolve(ctx)); stale {
		return ErrSignedOut
	}
	return nil
}

// SignOut forgets the stored tokens and the session. It does not wait for
// the backend; the server-side revoke happens in the background.
func (s *Store) SignOut() {
	s.mu.Lock()
	s.generation++
	s.clearLocked()
	s.ready = true
	snap, ls := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	s.remote.Logout()
	notify(ls, snap)
}

// UpdatePost patches a post. Authorization is left to the backend.
func (s *Store) UpdatePost(ctx context.Context, id int64, patch map[string]any) (*models.Post, error) {
	gen, err := s.begin()
	if err != nil {
		return nil, err
	}
	post, err := s.remote.Update(ctx, models.Posts, id, patch)
	s.settle(gen, nil)
	return post, err
}

// DeletePost deletes a post. Authorization is left to the backend.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	err = s.remote.Remove(ctx, models.Posts, id)
	s.settle(gen, nil)
	return err
}

// resolve asks the backend for the identity behind the stored token and
// returns the state change to apply.
func (s *Store) resolve(ctx context.Context) func() {
	id, err := s.remote.CurrentUser(ctx)
	if err == nil && id == nil {
		err = errors.New("empty identity")
	}
	if err != nil {
		if remote.IsAuth(err) {
			s.log.Debug("session not authenticated", zap.Error(err))
		} else {
			s.log.Warn("failed to resolve session", zap.Error(err))
		}
		return func() {
			s.clearLocked()
			s.ready = true
		}
	}

	identity := *id
	return func() {
		s.session = &identity
		s.isAdmin = identity.IsAdmin()
		s.ready = true
	}
}

// begin marks one call in flight and returns the generation it runs under.
func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.inflight++
	gen := s.generation
	snap, ls := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(ls, snap)
	return gen, nil
}

// settle releases the slot taken by begin and applies fn when gen is still
// current. Any settled call leaves the unknown state. It reports whether a SignOut made the call stale.
func (s *Store) settle(gen uint64, fn func()) (stale bool) {
	s.mu.Lock()
	s.inflight--
	s.ready = true
	if s.closed {
		s.mu.Unlock()
		return false
	}
	stale = gen != s.generation
	if !stale && fn != nil {
		fn()
	}
	snap, ls := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(ls, snap)
	return stale
}

func (s *Store) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.generation
}

func (s *Store) update(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn()
	snap, ls := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(ls, snap)
}

func (s *Store) clearLocked() {
	s.session = nil
	s.isAdmin = false
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		IsAdmin: s.isAdmin,
		Loading: !s.ready || s.inflight > 0,
	}
	if s.session != nil {
		id := *s.session
		snap.Session = &id
	}
	return snap
}

func (s *Store) listenersLocked() []func(Snapshot) {
	ls := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		ls = append(ls, fn)
	}
	return ls
}

func notify(ls []func(Snapshot), snap Snapshot) {
	for _, fn := range ls {
		fn(snap)
	}
}
