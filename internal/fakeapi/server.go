// Package fakeapi is an in-memory implementation of the review backend's HTTP
// contract. It backs the client's tests and the fakeapi development server;
// review, comparison and chat content is canned.
package fakeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
)

// ChatFunc produces the assistant reply for a chat turn. Returning an error
// makes the endpoint answer with an error envelope.
type ChatFunc func(ctx context.Context, req api.ChatRequest) (string, error)

// Config holds server configuration.
type Config struct {
	JWTSecret      string
	TokenTTL       time.Duration
	FirstSessionID int64
	// BcryptCost defaults to bcrypt.MinCost to keep tests fast.
	BcryptCost int
	Logger     *zap.Logger
	// RequestLog enables chi's request logger.
	RequestLog bool
}

// RecordedRequest is a request captured for assertions.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          json.RawMessage
}

type account struct {
	id           int64
	email        string
	passwordHash []byte
}

type analyzedProduct struct {
	id         int64
	name       string
	review     json.RawMessage
	lastViewed time.Time
}

type shortlisted struct {
	name    string
	created time.Time
}

type chatSession struct {
	id       int64
	userID   int64
	product  string
	created  time.Time
	messages []storedMessage
}

type storedMessage struct {
	role    shopper.Role
	content string
	created time.Time
}

type failure struct {
	status  int
	message string
}

// Server is the fake backend.
type Server struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.RWMutex
	accounts      map[int64]*account
	byEmail       map[string]int64
	nextUserID    int64
	profiles      map[int64]shopper.Profile
	analyzed      map[int64][]*analyzedProduct
	nextProductID int64
	shortlists    map[int64][]shortlisted
	sessions      map[int64]*chatSession
	nextSessionID int64
	revoked       map[string]bool
	failures      map[string][]failure
	requests      []RecordedRequest
	chatFunc      ChatFunc
	now           func() time.Time
}

// New creates a fake backend.
func New(cfg Config) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-insecure-change-me"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.FirstSessionID <= 0 {
		cfg.FirstSessionID = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		cfg:           cfg,
		logger:        logger,
		accounts:      make(map[int64]*account),
		byEmail:       make(map[string]int64),
		nextUserID:    1,
		profiles:      make(map[int64]shopper.Profile),
		analyzed:      make(map[int64][]*analyzedProduct),
		nextProductID: 1,
		shortlists:    make(map[int64][]shortlisted),
		sessions:      make(map[int64]*chatSession),
		nextSessionID: cfg.FirstSessionID,
		revoked:       make(map[string]bool),
		failures:      make(map[string][]failure),
		chatFunc:      defaultChat,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Handler wires the routes into a chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.cfg.RequestLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Route("/api", func(api chi.Router) {
		s.RegisterRoutes(api)
	})
	return r
}

// SetChatFunc replaces the chat responder.
func (s *Server) SetChatFunc(fn ChatFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = defaultChat
	}
	s.chatFunc = fn
}

// FailNext makes the next request to path answer with status and message
// instead of being handled. Calls queue up.
func (s *Server) FailNext(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], failure{status: status, message: message})
}

// Revoke makes every later request carrying token fail with 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// Requests returns the captured requests to path, oldest first.
func (s *Server) Requests(path string) []RecordedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RecordedRequest
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// SeedShortlist stores names on the shortlist of the account with email.
func (s *Server) SeedShortlist(email string, names ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return false
	}
	for _, name := range names {
		s.shortlists[id] = append(s.shortlists[id], shortlisted{name: name, created: s.now()})
	}
	return true
}

func defaultChat(_ context.Context, req api.ChatRequest) (string, error) {
	return "About " + req.ProductName + ": " + req.Message, nil
}
