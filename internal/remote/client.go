// Package remote is the member client's only network-facing component. It
// speaks the backend's auth and collection CRUD endpoints and classifies
// every failure as a validation, auth or network error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/models"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
)

// TokenStore is the durable home of the member's token pair.
type TokenStore interface {
	Load() models.TokenPair
	Save(models.TokenPair) error
	Clear() error
}

// Client talks to the backend on behalf of the member.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	log        *zap.Logger
	timeout    time.Duration

	revokes sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for background revoke failures.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTimeout bounds every request, including background revokes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tokens:  tokens,
		log:     zap.NewNop(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates a new member account. It does not sign the member in.
func (c *Client) Register(ctx context.Context, profile models.SignUp) error {
	return c.do(ctx, "register", http.MethodPost, "/api/auth/register", profile, nil, "")
}

// Login exchanges credentials for a token pair and persists it before
// returning.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", creds, &pair, ""); err != nil {
		return models.TokenPair{}, err
	}
	if !pair.HasAccess() {
		return models.TokenPair{}, &Error{Op: "login", Kind: KindNetwork, Status: http.StatusOK, Message: "response carried no access token"}
	}
	if err := c.tokens.Save(pair); err != nil {
		return models.TokenPair{}, storeError("login", err)
	}
	return pair, nil
}

// RefreshTokens rotates the stored pair using its refresh token.
func (c *Client) RefreshTokens(ctx context.Context) (models.TokenPair, error) {
	current := c.tokens.Load()
	if current.Refresh == "" {
		return models.TokenPair{}, &Error{Op: "refresh", Kind: KindAuth, Message: "no refresh token", Err: ErrNoToken}
	}

	var pair models.TokenPair
	body := models.TokenPair{Refresh: current.Refresh}
	if err := c.do(ctx, "refresh", http.MethodPost, "/api/auth/refresh", body, &pair, ""); err != nil {
		return models.TokenPair{}, err
	}
	if err := c.tokens.Save(pair); err != nil {
		return models.TokenPair{}, storeError("refresh", err)
	}
	return pair, nil
}

// Logout forgets the stored pair immediately and revokes the refresh token
// in the background. It never fails from the caller's point of view.
func (c *Client) Logout() {
	pair := c.tokens.Load()
	if err := c.tokens.Clear(); err != nil {
		c.log.Warn("failed to clear stored tokens", zap.Error(err))
	}
	if pair.Refresh == "" {
		return
	}

	c.revokes.Add(1)
	go func() {
		defer c.revokes.Done()
		body := models.TokenPair{Refresh: pair.Refresh}
		if err := c.do(context.Background(), "logout", http.MethodPost, "/api/auth/logout", body, nil, ""); err != nil {
			c.log.Debug("token revoke failed", zap.Error(err))
		}
	}()
}

// WaitIdle blocks until background revokes have finished.
func (c *Client) WaitIdle() {
	c.revokes.Wait()
}

// CurrentUser returns the identity behind the stored access token.
func (c *Client) CurrentUser(ctx context.Context) (*models.Identity, error) {
	access := c.tokens.Load().Access
	if access == "" {
		return nil, &Error{Op: "current user", Kind: KindAuth, Message: "not signed in", Err: ErrNoToken}
	}

	var id models.Identity
	if err := c.do(ctx, "current user", http.MethodGet, "/api/auth/me", nil, &id, access); err != nil {
		return nil, err
	}
	return &id, nil
}

// List returns records of a collection. Query values such as ordering,
// limit, offset and author are sent as given.
func (c *Client) List(ctx context.Context, collection models.Collection, query url.Values) ([]models.Record, error) {
	path := collectionPath(collection)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	records := []models.Record{}
	if err := c.do(ctx, "list "+string(collection), http.MethodGet, path, nil, &records, c.tokens.Load().Access); err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one record.
func (c *Client) Get(ctx context.Context, collection models.Collection, id int64) (*models.Record, error) {
	var rec models.Record
	if err := c.do(ctx, "get "+string(collection), http.MethodGet, recordPath(collection, id), nil, &rec, c.tokens.Load().Access); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create adds a record and returns it as stored.
func (c *Client) Create(ctx context.Context, collection models.Collection, fields map[string]any) (*models.Record, error) {
	var rec models.Record
	if err := c.do(ctx, "create "+string(collection), http.MethodPost, collectionPath(collection), fields, &rec, c.tokens.Load().Access); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update merges patch into a record and returns the result.
func (c *Client) Update(ctx context.Context, collection models.Collection, id int64, patch map[string]any) (*models.Record, error) {
	var rec models.Record
	if err := c.do(ctx, "update "+string(collection), http.MethodPatch, recordPath(collection, id), patch, &rec, c.tokens.Load().Access); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Remove deletes a record.
func (c *Client) Remove(ctx context.Context, collection models.Collection, id int64) error {
	return c.do(ctx, "remove "+string(collection), http.MethodDelete, recordPath(collection, id), nil, nil, c.tokens.Load().Access)
}

func collectionPath(collection models.Collection) string {
	return "/api/" + url.PathEscape(string(collection))
}

func recordPath(collection models.Collection, id int64) string {
	return collectionPath(collection) + "/" + strconv.FormatInt(id, 10)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// do sends in as JSON, decodes a successful response into out and turns
// everything else into an *Error.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, bearer string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return networkError(op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return networkError(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: KindNetwork, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func decodeError(op string, resp *http.Response) *Error {
	e := &Error{Op: op, Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		e.Err = err
	}

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		e.Message = eb.Error
		e.Fields = eb.Fields
	} else if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") {
		e.Message = text
	} else {
		e.Message = strings.ToLower(http.StatusText(resp.StatusCode))
	}
	return e
}
