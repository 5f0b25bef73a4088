package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/auth"
	"nexusai.dev/nexus/internal/core"
	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/store"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	usernameKey
)

type APIHandler struct {
	accounts  *core.AccountService
	discovery *core.DiscoveryService
	chats     *core.ChatService
	repos     *core.RepoService
	jwtSecret string
	logger    *zap.Logger
}

func NewAPIHandler(accounts *core.AccountService, discovery *core.DiscoveryService, chats *core.ChatService, repos *core.RepoService, jwtSecret string, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		accounts:  accounts,
		discovery: discovery,
		chats:     chats,
		repos:     repos,
		jwtSecret: jwtSecret,
		logger:    logging.OrNop(logger),
	}
}

func userIDFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

// languageFrom reads the lang query parameter, then the first
// Accept-Language tag.
func languageFrom(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	header := r.Header.Get("Accept-Language")
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	if first = strings.TrimSpace(first); first != "" && first != "*" {
		return first
	}
	return core.DefaultLanguage
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to status codes; anything unknown is logged
// and reported as a 500 with the fallback text.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrSearchLimitReached):
		writeMessage(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, core.ErrInvalidRepoURL), errors.Is(err, core.ErrUnknownMode):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrUserExists):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(fallback, zap.String("path", r.URL.Path), zap.Int64("user_id", userIDFrom(r)), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, fallback)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeMessage(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.accounts.GetUserByUsername(username)
		if err != nil {
			h.logger.Error("failed to resolve token user", zap.String("username", username), zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil {
			writeMessage(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		ctx = context.WithValue(ctx, usernameKey, user.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeError(w, r, err, "Failed to process password")
		return
	}

	user, err := h.accounts.CreateUser(req.Username, hashedPassword)
	if err != nil {
		h.writeError(w, r, err, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.accounts.GetUserByUsername(req.Username)
	if err != nil {
		h.logger.Warn("login lookup failed", zap.String("username", req.Username), zap.Error(err))
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(h.jwtSecret, user.Username)
	if err != nil {
		h.writeError(w, r, err, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type SearchRequest struct {
	Query string `json:"query"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeMessage(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	session, err := h.discovery.Search(r.Context(), userIDFrom(r), req.Query)
	if err != nil {
		h.writeError(w, r, err, "Failed to run search")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.discovery.ListSessions(userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.discovery.GetSession(userIDFrom(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.discovery.DeleteSession(userIDFrom(r), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ClearSessionsHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.discovery.ClearSessions(userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to clear sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

type AnalyzeItemResponse struct {
	*store.ContentItem
	Mode core.Mode `json:"mode"`
}

func (h *APIHandler) AnalyzeItemHandler(w http.ResponseWriter, r *http.Request) {
	item, mode, err := h.discovery.AnalyzeItem(r.Context(), userIDFrom(r), chi.URLParam(r, "itemID"), languageFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to analyze item")
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeItemResponse{ContentItem: item, Mode: mode})
}

func (h *APIHandler) StartChatHandler(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chats.StartChat(userIDFrom(r), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.GetChats(userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

type GetChatDetailsResponse struct {
	*store.ChatSession
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	chat, messages, err := h.chats.GetChatDetails(chi.URLParam(r, "chatID"), userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to get chat details")
		return
	}
	writeJSON(w, http.StatusOK, GetChatDetailsResponse{ChatSession: chat, Messages: messages})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PostMessageResponse struct {
	Messages []store.Message `json:"messages"`
	Mode     core.Mode       `json:"mode"`
}

func readContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req PostMessageRequest
	if !decode(w, r, &req) {
		return "", false
	}
	if strings.TrimSpace(req.Content) == "" {
		writeMessage(w, http.StatusBadRequest, "Message content cannot be empty")
		return "", false
	}
	return req.Content, true
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	content, ok := readContent(w, r)
	if !ok {
		return
	}
	messages, mode, err := h.chats.PostMessage(r.Context(), chi.URLParam(r, "chatID"), userIDFrom(r), content, languageFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to post message")
		return
	}
	writeJSON(w, http.StatusOK, PostMessageResponse{Messages: messages, Mode: mode})
}

func (h *APIHandler) DiscoverHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.repos.Discover(r.Context(), userIDFrom(r), q.Get("mode"), q.Get("query"))
	if err != nil {
		h.writeError(w, r, err, "Failed to discover repositories")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type AnalyzeRepoRequest struct {
	URL string `json:"url"`
}

func (h *APIHandler) AnalyzeRepoHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRepoRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.repos.AnalyzeRepo(userIDFrom(r), req.URL)
	if err != nil {
		h.writeError(w, r, err, "Failed to open repository session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type GetRepoChatResponse struct {
	*store.RepoSession
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetRepoChatHandler(w http.ResponseWriter, r *http.Request) {
	session, messages, err := h.repos.GetRepoChat(chi.URLParam(r, "sessionID"), userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to get repository chat")
		return
	}
	writeJSON(w, http.StatusOK, GetRepoChatResponse{RepoSession: session, Messages: messages})
}

func (h *APIHandler) PostRepoMessageHandler(w http.ResponseWriter, r *http.Request) {
	content, ok := readContent(w, r)
	if !ok {
		return
	}
	messages, mode, err := h.repos.PostRepoMessage(r.Context(), chi.URLParam(r, "sessionID"), userIDFrom(r), content, languageFrom(r))
	if err != nil {
		h.writeError(w, r, err, "Failed to post message")
		return
	}
	writeJSON(w, http.StatusOK, PostMessageResponse{Messages: messages, Mode: mode})
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.accounts.Settings(userIDFrom(r), h.discovery.Today())
	if err != nil {
		h.writeError(w, r, err, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type UpdateSettingsRequest struct {
	GeminiAPIKey string `json:"gemini_api_key"`
	GitHubToken  string `json:"github_token"`
}

func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	settings, err := h.accounts.UpdateSettings(userIDFrom(r), strings.TrimSpace(req.GeminiAPIKey), strings.TrimSpace(req.GitHubToken), h.discovery.Today())
	if err != nil {
		h.writeError(w, r, err, "Failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
