package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
)

const maxHistoryItems = 20

// RegisterRoutes registers the backend routes under r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Get("/stats", s.handleStats)
	r.Post("/compare", s.handleCompare)

	r.Group(func(r chi.Router) {
		r.Use(s.optionalUser)
		r.Post("/chat", s.handleChat)
		r.Post("/review", s.handleReview)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/auth/me", s.handleMe)
		r.Post("/history/summary", s.handleHistorySummary)
		r.Post("/history/latest-session", s.handleLatestSession)
		r.Post("/history/chat-session", s.handleChatSession)
		r.Post("/history/review", s.handleSavedReview)
		r.Get("/shortlist", s.handleShortlist)
		r.Post("/shortlist/add", s.handleShortlistAdd)
		r.Post("/shortlist/remove", s.handleShortlistRemove)
		r.Get("/profile", s.handleGetProfile)
		r.Post("/profile", s.handleSaveProfile)
	})
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := normalizeEmail(payload.Email)
	if !strings.Contains(email, "@") || payload.Password == "" {
		respondError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	hash, err := s.hashPassword(payload.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	s.mu.Lock()
	if _, exists := s.byEmail[email]; exists {
		s.mu.Unlock()
		respondError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	acct := &account{id: s.nextUserID, email: email, passwordHash: hash}
	s.nextUserID++
	s.accounts[acct.id] = acct
	s.byEmail[email] = acct.id
	s.mu.Unlock()

	s.logger.Info("account registered", zap.Int64("user_id", acct.id))
	s.respondToken(w, acct)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.RLock()
	var acct *account
	if id, ok := s.byEmail[normalizeEmail(payload.Email)]; ok {
		acct = s.accounts[id]
	}
	s.mu.RUnlock()

	if acct == nil || !verifyPassword(payload.Password, acct.passwordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.respondToken(w, acct)
}

func (s *Server) respondToken(w http.ResponseWriter, acct *account) {
	token, err := s.issueToken(acct.id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, api.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        shopper.User{ID: acct.id, Email: acct.email},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := userFrom(r.Context())

	s.mu.RLock()
	acct := s.accounts[id]
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, shopper.User{ID: acct.id, Email: acct.email})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	product, err := shopper.ValidateProductName(req.ProductName)
	if err != nil {
		respondEnvelope(w, "Product name must be between 1 and 200 characters")
		return
	}
	message, err := shopper.ValidateMessage(req.Message)
	if err != nil {
		respondEnvelope(w, "Message must be between 1 and 5000 characters")
		return
	}

	s.mu.RLock()
	chatFunc := s.chatFunc
	s.mu.RUnlock()

	reply, err := chatFunc(r.Context(), req)
	if err != nil {
		respondEnvelope(w, err.Error())
		return
	}

	resp := api.ChatResponse{Reply: reply}
	if userID, ok := userFrom(r.Context()); ok {
		id := s.saveTurn(userID, product, req.SessionID, message, reply)
		resp.SessionID = &id
	}
	respondJSON(w, http.StatusOK, resp)
}

// saveTurn mirrors create_or_get_chat_session + save_chat_turn.
func (s *Server) saveTurn(userID int64, product string, sessionID *int64, message, reply string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess *chatSession
	if sessionID != nil {
		if existing, ok := s.sessions[*sessionID]; ok && existing.userID == userID {
			sess = existing
		}
	}
	if sess == nil {
		sess = &chatSession{id: s.nextSessionID, userID: userID, product: product, created: s.now()}
		s.nextSessionID++
		s.sessions[sess.id] = sess
	}

	now := s.now()
	sess.messages = append(sess.messages,
		storedMessage{role: shopper.RoleUser, content: message, created: now},
		storedMessage{role: shopper.RoleAssistant, content: reply, created: now},
	)
	return sess.id
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req api.ReviewRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	product, err := shopper.ValidateProductName(req.ProductName)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Product name must be between 1 and 200 characters")
		return
	}

	review := cannedReview(product)
	if userID, ok := userFrom(r.Context()); ok {
		s.recordAnalyzed(userID, product, review)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(review)
}

func cannedReview(product string) json.RawMessage {
	review := map[string]any{
		"product_name":     product,
		"predicted_rating": "4.2/5",
		"price_info":       "unknown",
		"summary":          fmt.Sprintf("%s is a reasonable choice for most shoppers.", product),
		"pros":             []string{"build quality"},
		"cons":             []string{"price"},
	}
	raw, _ := json.Marshal(review)
	return raw
}

func (s *Server) recordAnalyzed(userID int64, product string, review json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.analyzed[userID] {
		if p.name == product {
			p.review = review
			p.lastViewed = s.now()
			return
		}
	}
	s.analyzed[userID] = append(s.analyzed[userID], &analyzedProduct{
		id:         s.nextProductID,
		name:       product,
		review:     review,
		lastViewed: s.now(),
	})
	s.nextProductID++
}

type comparePayload struct {
	Products []string `json:"products"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var payload comparePayload
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Products) < 2 || len(payload.Products) > 4 {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc":  []string{"body", "products"},
				"msg":  "List should have between 2 and 4 items",
				"type": "value_error",
			}},
		})
		return
	}

	rows := make([]map[string]any, 0, len(payload.Products))
	for _, name := range payload.Products {
		rows = append(rows, map[string]any{"product_name": name, "predicted_rating": "4.0/5"})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"products": rows,
		"winner":   payload.Products[0],
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	var products int64
	for _, list := range s.analyzed {
		products += int64(len(list))
	}
	users := int64(len(s.accounts))
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, api.Stats{
		ProductsAnalyzed: products,
		ReviewsProcessed: products * 10,
		ActiveUsers:      users,
	})
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())

	s.mu.RLock()
	products := append([]*analyzedProduct(nil), s.analyzed[userID]...)
	var sessions []*chatSession
	for _, sess := range s.sessions {
		if sess.userID == userID {
			sessions = append(sessions, sess)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(products, func(i, j int) bool { return products[i].lastViewed.After(products[j].lastViewed) })
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].id > sessions[j].id })
	if len(products) > maxHistoryItems {
		products = products[:maxHistoryItems]
	}
	if len(sessions) > maxHistoryItems {
		sessions = sessions[:maxHistoryItems]
	}

	out := api.HistorySummary{
		Products: make([]api.HistoryProduct, 0, len(products)),
		Sessions: make([]api.HistorySession, 0, len(sessions)),
	}
	for _, p := range products {
		item := api.HistoryProduct{
			ID:           p.id,
			ProductName:  p.name,
			LastViewedAt: api.Timestamp(p.lastViewed),
		}
		var review struct {
			Rating *string          `json:"predicted_rating"`
			Price  *json.RawMessage `json:"price_info"`
		}
		if err := json.Unmarshal(p.review, &review); err == nil {
			item.Rating = review.Rating
			if review.Price != nil {
				item.Price = *review.Price
			}
		}
		out.Products = append(out.Products, item)
	}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, api.HistorySession{
			ID:          sess.id,
			ProductName: sess.product,
			CreatedAt:   api.Timestamp(sess.created),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var payload struct {
		ProductName string `json:"product_name"`
	}
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.RLock()
	var latest *chatSession
	for _, sess := range s.sessions {
		if sess.userID != userID || sess.product != payload.ProductName {
			continue
		}
		if latest == nil || sess.id > latest.id {
			latest = sess
		}
	}
	s.mu.RUnlock()

	var id *int64
	if latest != nil {
		v := latest.id
		id = &v
	}
	respondJSON(w, http.StatusOK, map[string]*int64{"session_id": id})
}

func (s *Server) handleChatSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var payload struct {
		SessionID int64 `json:"session_id"`
	}
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	type row struct {
		Role      shopper.Role  `json:"role"`
		Content   string        `json:"content"`
		CreatedAt api.Timestamp `json:"created_at"`
	}
	messages := []row{}

	s.mu.RLock()
	if sess, ok := s.sessions[payload.SessionID]; ok && sess.userID == userID {
		for _, m := range sess.messages {
			messages = append(messages, row{Role: m.role, Content: m.content, CreatedAt: api.Timestamp(m.created)})
		}
	}
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleSavedReview(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var payload struct {
		ProductName string `json:"product_name"`
	}
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var review json.RawMessage
	s.mu.RLock()
	for _, p := range s.analyzed[userID] {
		if p.name == payload.ProductName {
			review = p.review
		}
	}
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, map[string]json.RawMessage{"review": review})
}

func (s *Server) handleShortlist(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())

	s.mu.RLock()
	rows := append([]shortlisted(nil), s.shortlists[userID]...)
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].created.After(rows[j].created) })

	out := make([]api.ShortlistItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, api.ShortlistItem{ProductName: row.name, CreatedAt: api.Timestamp(row.created)})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleShortlistAdd(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var payload struct {
		ProductName string `json:"product_name"`
	}
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.shortlists[userID] {
		if shopper.SameProduct(row.name, payload.ProductName) {
			respondJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Already in shortlist"})
			return
		}
	}
	s.shortlists[userID] = append(s.shortlists[userID], shortlisted{name: payload.ProductName, created: s.now()})
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Added to shortlist"})
}

func (s *Server) handleShortlistRemove(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var payload struct {
		ProductName string `json:"product_name"`
	}
	if err := decode(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.shortlists[userID][:0]
	for _, row := range s.shortlists[userID] {
		if !shopper.SameProduct(row.name, payload.ProductName) {
			kept = append(kept, row)
		}
	}
	s.shortlists[userID] = kept
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())

	s.mu.RLock()
	profile, ok := s.profiles[userID]
	s.mu.RUnlock()

	if !ok {
		respondJSON(w, http.StatusOK, nil)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var profile shopper.Profile
	if err := decode(r, &profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if profile.UseCases == nil {
		profile.UseCases = []string{}
	}
	if profile.PreferredBrands == nil {
		profile.PreferredBrands = []string{}
	}

	s.mu.Lock()
	s.profiles[userID] = profile
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Profile saved successfully"})
}
