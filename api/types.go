package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creastat/shopper"
)

// Timestamp accepts RFC 3339 as well as the zone-less ISO 8601 form the
// backend emits, which time.Time rejects.
type Timestamp time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = Timestamp(parsed)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

// Time returns the value as time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type,omitempty"`
	User        shopper.User `json:"user"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ProductName         string                `json:"product_name"`
	Message             string                `json:"message"`
	ConversationHistory []shopper.ChatMessage `json:"conversation_history"`
	DataMode            *string               `json:"data_mode"`
	UseWeb              bool                  `json:"use_web"`
	UserProfile         *shopper.Profile      `json:"user_profile"`
	UserID              string                `json:"user_id,omitempty"`
	SessionID           *int64                `json:"session_id"`
}

// ChatResponse is the reply to a chat turn.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID *int64 `json:"session_id,omitempty"`
}

// HistoryProduct is one analyzed product in the history summary.
type HistoryProduct struct {
	ID           int64           `json:"id"`
	ProductName  string          `json:"product_name"`
	LastViewedAt Timestamp       `json:"last_viewed_at"`
	Rating       *string         `json:"rating,omitempty"`
	Price        json.RawMessage `json:"price,omitempty"`
}

// HistorySession is one stored chat session in the history summary.
type HistorySession struct {
	ID          int64     `json:"id"`
	ProductName string    `json:"product_name"`
	CreatedAt   Timestamp `json:"created_at"`
}

// HistorySummary is returned by POST /api/history/summary.
type HistorySummary struct {
	Products []HistoryProduct `json:"products"`
	Sessions []HistorySession `json:"sessions"`
}

// Entries converts the product rows into history entries, newest first as
// returned by the server.
func (s HistorySummary) Entries() []shopper.HistoryEntry {
	entries := make([]shopper.HistoryEntry, 0, len(s.Products))
	for _, p := range s.Products {
		entries = append(entries, shopper.HistoryEntry{
			Name:      p.ProductName,
			Rating:    p.Rating,
			Price:     p.Price,
			Timestamp: p.LastViewedAt.Time(),
		})
	}
	return entries
}

type userRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type latestSessionRequest struct {
	UserID      string `json:"user_id,omitempty"`
	ProductName string `json:"product_name"`
}

type latestSessionResponse struct {
	SessionID *int64 `json:"session_id"`
}

type chatSessionRequest struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID int64  `json:"session_id"`
}

type transcriptRow struct {
	Role      shopper.Role `json:"role"`
	Content   string       `json:"content"`
	CreatedAt Timestamp    `json:"created_at"`
}

type chatSessionResponse struct {
	Messages []transcriptRow `json:"messages"`
}

type productRequest struct {
	ProductName string `json:"product_name"`
}

type savedReviewResponse struct {
	Review json.RawMessage `json:"review"`
}

// ShortlistItem is one row of GET /api/shortlist.
type ShortlistItem struct {
	ProductName string    `json:"product_name"`
	CreatedAt   Timestamp `json:"created_at"`
}

type profileRequest struct {
	UserID string `json:"user_id,omitempty"`
	shopper.Profile
}

// ReviewRequest is the body of POST /api/review.
type ReviewRequest struct {
	ProductName string  `json:"product_name"`
	DataMode    *string `json:"data_mode"`
	UseWeb      bool    `json:"use_web"`
	UserID      string  `json:"user_id,omitempty"`
}

type compareRequest struct {
	Products []string `json:"products"`
}

// Stats is returned by GET /api/stats.
type Stats struct {
	ProductsAnalyzed int64 `json:"products_analyzed"`
	ReviewsProcessed int64 `json:"reviews_processed"`
	ActiveUsers      int64 `json:"active_users"`
}
