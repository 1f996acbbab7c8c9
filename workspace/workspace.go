// Package workspace wires the session layer together and is the entry point
// for searches, conversations and list edits.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
	"github.com/creastat/shopper/auth"
	"github.com/creastat/shopper/chat"
	"github.com/creastat/shopper/credential"
	"github.com/creastat/shopper/identity"
	"github.com/creastat/shopper/intent"
	"github.com/creastat/shopper/keystore"
	"github.com/creastat/shopper/lists"
)

// Config holds workspace configuration.
type Config struct {
	API  api.Config
	Keys keystore.Store
	// DataMode is sent with reviews and chat turns. Empty sends null.
	DataMode string
	// DisableWeb turns off use_web on reviews and chat turns.
	DisableWeb bool
	Logger     *zap.Logger
}

// SearchResult is the outcome of Search. Review is set for a single product,
// Comparison for a comparison.
type SearchResult struct {
	Intent     intent.Intent
	Review     json.RawMessage
	Comparison json.RawMessage
}

// Workspace owns the components of one client session.
type Workspace struct {
	creds     *credential.Store
	anon      *identity.Resolver
	client    *api.Client
	authority *auth.Authority
	chat      *chat.Manager
	shortlist *lists.Reconciler[shopper.ShortlistEntry]
	history   *lists.Reconciler[shopper.HistoryEntry]

	dataMode *string
	useWeb   bool
	logger   *zap.Logger
	unsub    func()
	now      func() time.Time
}

// Open builds a workspace over cfg.Keys. Call Bootstrap before use.
func Open(ctx context.Context, cfg Config) (*Workspace, error) {
	if cfg.Keys == nil {
		return nil, fmt.Errorf("%w: key store is required", keystore.ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	creds, err := credential.Open(ctx, cfg.Keys, credential.WithLogger(logger.Named("credential")))
	if err != nil {
		return nil, err
	}

	apiCfg := cfg.API
	if apiCfg.Logger == nil {
		apiCfg.Logger = logger.Named("api")
	}
	client, err := api.New(apiCfg, creds)
	if err != nil {
		return nil, err
	}

	anon := identity.NewResolver(cfg.Keys, identity.WithLogger(logger.Named("identity")))

	w := &Workspace{
		creds:  creds,
		anon:   anon,
		client: client,
		useWeb: !cfg.DisableWeb,
		logger: logger,
		now:    time.Now,
	}
	if cfg.DataMode != "" {
		mode := cfg.DataMode
		w.dataMode = &mode
	}

	// The authority subscribes first so it has already dropped the user when
	// the workspace reacts to the same event.
	w.authority = auth.New(creds, client, auth.WithLogger(logger.Named("auth")))
	w.chat = chat.New(client,
		chat.WithUserID(anon.Resolve),
		chat.WithDataMode(cfg.DataMode),
		chat.WithWebSearch(w.useWeb),
		chat.WithLogger(logger.Named("chat")))
	w.shortlist = lists.NewShortlist(client, lists.WithLogger(logger.Named("shortlist")))
	w.history = lists.NewHistory(client, anon.Resolve, lists.WithLogger(logger.Named("history")))
	w.unsub = creds.Subscribe(w.onCredential)

	return w, nil
}

// Bootstrap verifies the stored credential and, when signed in, loads the
// server-side lists.
func (w *Workspace) Bootstrap(ctx context.Context) error {
	if err := w.authority.Bootstrap(ctx); err != nil {
		w.logger.Info("continuing anonymously", zap.Error(err))
	}
	return w.Refresh(ctx)
}

func (w *Workspace) onCredential(ev credential.Event) {
	switch {
	case !ev.Present:
		w.shortlist.Discard()
		w.history.Discard()
		w.chat.Reset()
		w.logger.Info("session ended, local state discarded", zap.String("reason", string(ev.Reason)))
	case ev.Reason == credential.ReasonLogin:
		// Anonymous lists are not merged into the account. A chat session
		// belongs to one identity, so the conversation starts over too.
		w.shortlist.Discard()
		w.history.Discard()
		w.chat.Reset()
	}
}

// Search classifies raw and fetches either a single-product review or a
// comparison. A single-product search starts a new conversation about that
// product and records it in the recent history.
func (w *Workspace) Search(ctx context.Context, raw string) (SearchResult, error) {
	query, err := shopper.ValidateProductName(raw)
	if err != nil {
		return SearchResult{}, err
	}

	in := intent.Classify(query)
	result := SearchResult{Intent: in}

	if in.Mode == intent.ModeCompare {
		w.chat.Reset()
		result.Comparison, err = w.client.Compare(ctx, in.Names)
		if err != nil {
			return result, err
		}
		return result, nil
	}

	w.chat.Switch(in.Name)
	userID, err := w.anon.Resolve(ctx)
	if err != nil {
		return result, err
	}
	result.Review, err = w.client.Review(ctx, api.ReviewRequest{
		ProductName: in.Name,
		DataMode:    w.dataMode,
		UseWeb:      w.useWeb,
		UserID:      userID,
	})
	if err != nil {
		return result, err
	}

	entry := historyEntry(in.Name, result.Review, w.now())
	if _, err := w.history.Add(ctx, entry); err != nil {
		w.logger.Warn("failed to record history", zap.String("product", in.Name), zap.Error(err))
	}
	return result, nil
}

// SelectPast reopens a previously analyzed product: the stored conversation
// is rehydrated and the saved review returned, or nil when none is stored.
func (w *Workspace) SelectPast(ctx context.Context, name string) (json.RawMessage, error) {
	name, err := shopper.ValidateProductName(name)
	if err != nil {
		return nil, err
	}
	userID, err := w.anon.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	sessionID, err := w.client.LatestSession(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	var messages []shopper.ChatMessage
	if sessionID != nil {
		rows, err := w.client.ChatSessionMessages(ctx, userID, *sessionID)
		if err != nil {
			return nil, err
		}
		messages = shopper.TranscriptToMessages(rows)
	}
	w.chat.Hydrate(name, sessionID, messages)

	return w.client.SavedReview(ctx, name)
}

// Ask sends text to the assistant about the active product.
func (w *Workspace) Ask(ctx context.Context, text string, profile *shopper.Profile) (chat.Reply, error) {
	return w.chat.Send(ctx, text, profile)
}

// Refresh reloads the shortlist and history from the server. It does nothing
// while anonymous.
func (w *Workspace) Refresh(ctx context.Context) error {
	if !w.authority.Authenticated() {
		return nil
	}
	return errors.Join(w.shortlist.Load(ctx), w.history.Load(ctx))
}

func (w *Workspace) refreshQuietly(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil {
		w.logger.Warn("failed to load account lists", zap.Error(err))
	}
}

// AddToShortlist adds name unless an equivalent name is already listed.
func (w *Workspace) AddToShortlist(ctx context.Context, name string) (bool, error) {
	name, err := shopper.ValidateProductName(name)
	if err != nil {
		return false, err
	}
	return w.shortlist.Add(ctx, shopper.ShortlistEntry{Name: name, Timestamp: w.now().UTC()})
}

// RemoveFromShortlist removes the entry matching name.
func (w *Workspace) RemoveFromShortlist(ctx context.Context, name string) error {
	name, err := shopper.ValidateProductName(name)
	if err != nil {
		return err
	}
	return w.shortlist.Remove(ctx, shopper.ShortlistEntry{Name: name})
}

// LoadProfile returns the stored profile, or nil.
func (w *Workspace) LoadProfile(ctx context.Context) (*shopper.Profile, error) {
	return w.client.Profile(ctx)
}

// SaveProfile validates and stores p.
func (w *Workspace) SaveProfile(ctx context.Context, p shopper.Profile) error {
	if err := shopper.ValidateProfile(p); err != nil {
		return err
	}
	userID, err := w.anon.Resolve(ctx)
	if err != nil {
		return err
	}
	return w.client.SaveProfile(ctx, userID, p)
}

// Login signs in through the authority and loads the account's lists. A
// failure to load the lists is logged, not returned.
func (w *Workspace) Login(ctx context.Context, email, password string) (shopper.User, error) {
	user, err := w.authority.Login(ctx, email, password)
	if err != nil {
		return user, err
	}
	w.refreshQuietly(ctx)
	return user, nil
}

// Register creates an account, signs in and loads the account's lists.
func (w *Workspace) Register(ctx context.Context, email, password string) (shopper.User, error) {
	user, err := w.authority.Register(ctx, email, password)
	if err != nil {
		return user, err
	}
	w.refreshQuietly(ctx)
	return user, nil
}

// Logout ends the session locally.
func (w *Workspace) Logout(ctx context.Context) error {
	return w.authority.Logout(ctx)
}

// AnonymousID returns the stable anonymous identity.
func (w *Workspace) AnonymousID(ctx context.Context) (string, error) {
	return w.anon.Resolve(ctx)
}

func (w *Workspace) Authority() *auth.Authority { return w.authority }
func (w *Workspace) Chat() *chat.Manager { return w.chat }
func (w *Workspace) Shortlist() *lists.Reconciler[shopper.ShortlistEntry] { return w.shortlist }
func (w *Workspace) History() *lists.Reconciler[shopper.HistoryEntry] { return w.history }
func (w *Workspace) Client() *api.Client { return w.client }
func (w *Workspace) Credentials() *credential.Store { return w.creds }

// Close stops background work and detaches from the credential store. The
// key store is owned by the caller.
func (w *Workspace) Close() error {
	w.unsub()
	err := w.authority.Close()
	w.chat.Wait()
	return err
}

// historyEntry builds a local history row from a review payload.
func historyEntry(name string, review json.RawMessage, now time.Time) shopper.HistoryEntry {
	entry := shopper.HistoryEntry{Name: name, Timestamp: now.UTC()}
	var fields struct {
		Rating *string         `json:"predicted_rating"`
		Price  json.RawMessage `json:"price_info"`
	}
	if err := json.Unmarshal(review, &fields); err == nil {
		entry.Rating = fields.Rating
		if len(fields.Price) > 0 && string(fields.Price) != "null" {
			entry.Price = fields.Price
		}
	}
	return entry
}
