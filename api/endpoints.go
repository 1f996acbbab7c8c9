package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/creastat/shopper"
)

// Login exchanges email and password for an access token. Login never
// triggers the unauthorized cascade: a wrong password must leave any live
// session untouched.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   path,
		body:   credentialsRequest{Email: email, Password: password},
		out:    &out,
		public: true,
	})
	if err != nil {
		return AuthResponse{}, err
	}
	if out.AccessToken == "" {
		return AuthResponse{}, fmt.Errorf("%s: response carried no access token", path)
	}
	return out, nil
}

// Me resolves the user behind the current credential.
func (c *Client) Me(ctx context.Context) (shopper.User, error) {
	var out shopper.User
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/auth/me", out: &out})
	return out, err
}

// Chat sends one conversation turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []shopper.ChatMessage{}
	}
	var out ChatResponse
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/chat", body: req, out: &out})
	return out, err
}

// HistorySummary lists recently analyzed products and chat sessions.
func (c *Client) HistorySummary(ctx context.Context, userID string) (HistorySummary, error) {
	var out HistorySummary
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/history/summary",
		body:   userRequest{UserID: userID},
		out:    &out,
	})
	return out, err
}

// LatestSession returns the most recent chat session id for product, or nil.
func (c *Client) LatestSession(ctx context.Context, userID, product string) (*int64, error) {
	var out latestSessionResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/history/latest-session",
		body:   latestSessionRequest{UserID: userID, ProductName: product},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out.SessionID, nil
}

// ChatSessionMessages returns the stored transcript of a chat session.
func (c *Client) ChatSessionMessages(ctx context.Context, userID string, sessionID int64) ([]shopper.TranscriptMessage, error) {
	var out chatSessionResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/history/chat-session",
		body:   chatSessionRequest{UserID: userID, SessionID: sessionID},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]shopper.TranscriptMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		rows = append(rows, shopper.TranscriptMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Time(),
		})
	}
	return rows, nil
}

// SavedReview returns the last stored review for product, or nil.
func (c *Client) SavedReview(ctx context.Context, product string) (json.RawMessage, error) {
	var out savedReviewResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/history/review",
		body:   productRequest{ProductName: product},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if isNull(out.Review) {
		return nil, nil
	}
	return out.Review, nil
}

// Shortlist returns the server's shortlist.
func (c *Client) Shortlist(ctx context.Context) ([]ShortlistItem, error) {
	var out []ShortlistItem
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/shortlist", out: &out})
	return out, err
}

// ShortlistAdd adds product to the shortlist.
func (c *Client) ShortlistAdd(ctx context.Context, product string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/shortlist/add",
		body:   productRequest{ProductName: product},
	})
}

// ShortlistRemove removes product from the shortlist.
func (c *Client) ShortlistRemove(ctx context.Context, product string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/shortlist/remove",
		body:   productRequest{ProductName: product},
	})
}

// Profile returns the saved profile, or nil when none exists.
func (c *Client) Profile(ctx context.Context) (*shopper.Profile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/profile", out: &raw}); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var p shopper.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("GET /api/profile: failed to decode response: %w", err)
	}
	return &p, nil
}

// SaveProfile stores p for the current identity.
func (c *Client) SaveProfile(ctx context.Context, userID string, p shopper.Profile) error {
	if p.UseCases == nil {
		p.UseCases = []string{}
	}
	if p.PreferredBrands == nil {
		p.PreferredBrands = []string{}
	}
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/profile",
		body:   profileRequest{UserID: userID, Profile: p},
	})
}

// Review generates (or fetches) the review of a single product. The payload
// is opaque to this client.
func (c *Client) Review(ctx context.Context, req ReviewRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, call{method: http.MethodPost, path: "/api/review", body: req, out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// Compare generates a side-by-side comparison of products.
func (c *Client) Compare(ctx context.Context, products []string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/compare",
		body:   compareRequest{Products: products},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns public usage counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/stats", out: &out, public: true})
	return out, err
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
