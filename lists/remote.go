package lists

import (
	"context"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
)

// HistoryAPI is the part of the api client HistoryRemote uses.
type HistoryAPI interface {
	HistorySummary(ctx context.Context, userID string) (api.HistorySummary, error)
}

// ShortlistAPI is the part of the api client ShortlistRemote uses.
type ShortlistAPI interface {
	Shortlist(ctx context.Context) ([]api.ShortlistItem, error)
	ShortlistAdd(ctx context.Context, product string) error
	ShortlistRemove(ctx context.Context, product string) error
}

// HistoryRemote serves the recent-history list. The backend records history
// itself while generating a review, so Add only confirms the local entry, and
// history entries cannot be removed.
type HistoryRemote struct {
	client HistoryAPI
	userID func(context.Context) (string, error)
}

var _ Remote[shopper.HistoryEntry] = (*HistoryRemote)(nil)

// NewHistoryRemote creates a HistoryRemote. userID supplies the anonymous id
// sent alongside the credential.
func NewHistoryRemote(client HistoryAPI, userID func(context.Context) (string, error)) *HistoryRemote {
	return &HistoryRemote{client: client, userID: userID}
}

func (h *HistoryRemote) Load(ctx context.Context) ([]shopper.HistoryEntry, error) {
	id, err := h.userID(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := h.client.HistorySummary(ctx, id)
	if err != nil {
		return nil, err
	}
	return summary.Entries(), nil
}

func (h *HistoryRemote) Add(context.Context, shopper.HistoryEntry) error { return nil }

func (h *HistoryRemote) Remove(context.Context, shopper.HistoryEntry) error {
	return ErrUnsupported
}

// ShortlistRemote serves the shortlist.
type ShortlistRemote struct {
	client ShortlistAPI
}

var _ Remote[shopper.ShortlistEntry] = (*ShortlistRemote)(nil)

// NewShortlistRemote creates a ShortlistRemote.
func NewShortlistRemote(client ShortlistAPI) *ShortlistRemote {
	return &ShortlistRemote{client: client}
}

func (s *ShortlistRemote) Load(ctx context.Context) ([]shopper.ShortlistEntry, error) {
	rows, err := s.client.Shortlist(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]shopper.ShortlistEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, shopper.ShortlistEntry{
			Name:      row.ProductName,
			Timestamp: row.CreatedAt.Time(),
		})
	}
	return entries, nil
}

func (s *ShortlistRemote) Add(ctx context.Context, e shopper.ShortlistEntry) error {
	return s.client.ShortlistAdd(ctx, e.Name)
}

func (s *ShortlistRemote) Remove(ctx context.Context, e shopper.ShortlistEntry) error {
	return s.client.ShortlistRemove(ctx, e.Name)
}

// NewShortlist returns a Reconciler for the shortlist.
func NewShortlist(client ShortlistAPI, opts ...Option) *Reconciler[shopper.ShortlistEntry] {
	return New[shopper.ShortlistEntry](NewShortlistRemote(client), shortlistName, opts...)
}

// NewHistory returns a Reconciler for recent history, newest first.
func NewHistory(client HistoryAPI, userID func(context.Context) (string, error), opts ...Option) *Reconciler[shopper.HistoryEntry] {
	opts = append([]Option{WithPrepend()}, opts...)
	return New[shopper.HistoryEntry](NewHistoryRemote(client, userID), historyName, opts...)
}

func shortlistName(e shopper.ShortlistEntry) string { return e.Name }

func historyName(e shopper.HistoryEntry) string { return e.Name }
