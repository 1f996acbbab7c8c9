package shopper

import (
	"encoding/json"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one conversation turn as sent to and received from the backend.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TranscriptMessage is a stored chat turn returned by the history endpoints.
type TranscriptMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the account resolved from a verified credential.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// HistoryEntry is a previously analyzed product.
type HistoryEntry struct {
	Name      string          `json:"name"`
	Rating    *string         `json:"rating,omitempty"`
	Price     json.RawMessage `json:"price,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// ShortlistEntry is a user-curated product, keyed by its normalized name.
type ShortlistEntry struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile holds the shopper preferences sent with every chat turn.
type Profile struct {
	MinBudget       *int     `json:"min_budget"`
	MaxBudget       *int     `json:"max_budget"`
	UseCases        []string `json:"use_cases"`
	PreferredBrands []string `json:"preferred_brands"`
}

// Empty reports whether the profile carries no preference at all.
func (p *Profile) Empty() bool {
	if p == nil {
		return true
	}
	return p.MinBudget == nil && p.MaxBudget == nil && len(p.UseCases) == 0 && len(p.PreferredBrands) == 0
}
