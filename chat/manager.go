// Package chat keeps the conversation about the active product coherent:
// sends are queued and run one at a time, and replies that arrive after the
// user moved on to another product are dropped.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
)

var (
	// ErrStale is returned by Send when the active product changed before
	// the reply arrived. The reply has been discarded.
	ErrStale = errors.New("chat session changed before reply arrived")
	// ErrNoProduct is returned by Send before any product is active.
	ErrNoProduct = errors.New("no active product")
)

// API is the part of the backend client the manager uses.
type API interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
}

// Reply is the assistant's answer to one send.
type Reply struct {
	Content   string
	SessionID *int64
}

type result struct {
	reply Reply
	err   error
}

type job struct {
	ctx     context.Context
	text    string
	profile *shopper.Profile
	gen     uint64
	done    chan result
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithUserID sets the source of the anonymous id sent as user_id.
func WithUserID(fn func(context.Context) (string, error)) Option {
	return func(m *Manager) { m.userID = fn }
}

// WithDataMode sets the data_mode sent with every turn. Empty sends null.
func WithDataMode(mode string) Option {
	return func(m *Manager) {
		if mode == "" {
			m.dataMode = nil
			return
		}
		m.dataMode = &mode
	}
}

// WithWebSearch toggles use_web. It is on by default.
func WithWebSearch(enabled bool) Option {
	return func(m *Manager) { m.useWeb = enabled }
}

// Manager holds the conversation for one product at a time.
type Manager struct {
	client   API
	userID   func(context.Context) (string, error)
	dataMode *string
	useWeb   bool
	logger   *zap.Logger

	mu        sync.Mutex
	product   string
	gen       uint64
	messages  []shopper.ChatMessage
	pending   []*job
	sessionID *int64
	lastErr   error
	running   bool
	inflight  bool
	wg        sync.WaitGroup
}

// New creates a Manager with no active product.
func New(client API, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		useWeb: true,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Switch starts a fresh, empty conversation about product. Queued sends are
// abandoned with ErrStale and the reply of an in-flight send is discarded.
func (m *Manager) Switch(product string) {
	m.reset(product, nil, nil)
}

// Hydrate starts a conversation about product that continues a stored
// session.
func (m *Manager) Hydrate(product string, sessionID *int64, messages []shopper.ChatMessage) {
	m.reset(product, sessionID, messages)
}

// Reset drops the conversation and the active product.
func (m *Manager) Reset() {
	m.reset("", nil, nil)
}

func (m *Manager) reset(product string, sessionID *int64, messages []shopper.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.product = product
	m.messages = append([]shopper.ChatMessage(nil), messages...)
	m.sessionID = copyID(sessionID)
	m.lastErr = nil

	for _, j := range m.pending {
		j.done <- result{err: ErrStale}
	}
	m.pending = nil

	m.logger.Debug("chat session reset",
		zap.String("product", product),
		zap.Int("messages", len(messages)),
		zap.Uint64("generation", m.gen))
}

// Send queues text as the next user turn and waits for the reply. The user
// message is visible in Messages immediately. Sends run in FIFO order with at
// most one request in flight; each request carries the whole conversation up
// to and including its own message.
//
// If ctx ends while the send is still queued it is withdrawn and its message
// removed. On failure the user message stays in the log, Err reports the
// failure and no reply is appended.
func (m *Manager) Send(ctx context.Context, text string, profile *shopper.Profile) (Reply, error) {
	text, err := shopper.ValidateMessage(text)
	if err != nil {
		return Reply{}, err
	}

	j := &job{
		ctx:     ctx,
		text:    text,
		profile: cloneProfile(profile),
		done:    make(chan result, 1),
	}

	m.mu.Lock()
	if m.product == "" {
		m.mu.Unlock()
		return Reply{}, ErrNoProduct
	}
	j.gen = m.gen
	m.pending = append(m.pending, j)
	if !m.running {
		m.running = true
		m.wg.Add(1)
		go m.drain()
	}
	m.mu.Unlock()

	select {
	case r := <-j.done:
		return r.reply, r.err
	case <-ctx.Done():
		if m.withdraw(j) {
			return Reply{}, ctx.Err()
		}
		// Already dispatched; the request observes ctx and resolves shortly.
		r := <-j.done
		return r.reply, r.err
	}
}

// withdraw removes j from the queue if it has not been dispatched yet.
func (m *Manager) withdraw(j *job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pending {
		if p == j {
			m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}

// drain runs queued sends until the queue is empty, then exits.
func (m *Manager) drain() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		j := m.pending[0]
		m.pending = m.pending[1:]

		if err := j.ctx.Err(); err != nil {
			m.mu.Unlock()
			j.done <- result{err: err}
			continue
		}

		m.messages = shopper.AppendMessage(m.messages, shopper.RoleUser, j.text)
		req := api.ChatRequest{
			ProductName:         m.product,
			Message:             j.text,
			ConversationHistory: shopper.CloneMessages(m.messages),
			DataMode:            m.dataMode,
			UseWeb:              m.useWeb,
			UserProfile:         j.profile,
			SessionID:           copyID(m.sessionID),
		}
		m.inflight = true
		m.mu.Unlock()

		j.done <- m.dispatch(j, req)
	}
}

func (m *Manager) dispatch(j *job, req api.ChatRequest) result {
	resp, err := m.call(j.ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight = false

	if j.gen != m.gen {
		m.logger.Debug("discarding reply for previous session",
			zap.String("product", req.ProductName),
			zap.Uint64("generation", j.gen))
		return result{err: ErrStale}
	}
	if err != nil {
		m.lastErr = err
		m.logger.Warn("chat turn failed", zap.String("product", req.ProductName), zap.Error(err))
		return result{err: err}
	}

	if resp.SessionID != nil && (m.sessionID == nil || *m.sessionID != *resp.SessionID) {
		m.sessionID = copyID(resp.SessionID)
		m.logger.Debug("chat session assigned", zap.Int64("session_id", *resp.SessionID))
	}
	m.messages = shopper.AppendMessage(m.messages, shopper.RoleAssistant, resp.Reply)
	m.lastErr = nil
	return result{reply: Reply{Content: resp.Reply, SessionID: copyID(m.sessionID)}}
}

func (m *Manager) call(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error) {
	if m.userID != nil {
		id, err := m.userID(ctx)
		if err != nil {
			return api.ChatResponse{}, fmt.Errorf("failed to resolve anonymous id: %w", err)
		}
		req.UserID = id
	}
	return m.client.Chat(ctx, req)
}

// Messages returns the conversation, including user messages still queued.
func (m *Manager) Messages() []shopper.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]shopper.ChatMessage, 0, len(m.messages)+len(m.pending))
	out = append(out, m.messages...)
	for _, j := range m.pending {
		out = append(out, shopper.ChatMessage{Role: shopper.RoleUser, Content: j.text})
	}
	return out
}

// Product returns the active product, or "".
func (m *Manager) Product() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.product
}

// SessionID returns the server-assigned session id, or nil.
func (m *Manager) SessionID() *int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyID(m.sessionID)
}

// Busy reports whether a send is queued or in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight || len(m.pending) > 0
}

// Err returns the error of the last failed send in this session, cleared by
// the next successful one.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Wait blocks until the queue is drained and the worker has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneProfile(p *shopper.Profile) *shopper.Profile {
	if p == nil {
		return nil
	}
	c := shopper.Profile{
		MinBudget:       copyInt(p.MinBudget),
		MaxBudget:       copyInt(p.MaxBudget),
		UseCases:        slices.Clone(p.UseCases),
		PreferredBrands: slices.Clone(p.PreferredBrands),
	}
	return &c
}
