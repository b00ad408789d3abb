package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/auth"
	"techsupport.dev/assistant/internal/core"
	"techsupport.dev/assistant/internal/knowledge"
	"techsupport.dev/assistant/internal/session"
	"techsupport.dev/assistant/internal/store"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	tokenIDKey  contextKey = "tokenID"
)

type APIHandler struct {
	chatService *core.ChatService
	knowledge   *knowledge.Repository
	store       store.Store
	tokens      *auth.TokenManager
	sessions    session.Store
}

func NewAPIHandler(cs *core.ChatService, kr *knowledge.Repository, s store.Store, tokens *auth.TokenManager, sessions session.Store) *APIHandler {
	return &APIHandler{
		chatService: cs,
		knowledge:   kr,
		store:       s,
		tokens:      tokens,
		sessions:    sessions,
	}
}

func identityFrom(ctx context.Context) *session.Identity {
	id, _ := ctx.Value(identityKey).(*session.Identity)
	return id
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := h.tokens.Validate(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		identity, err := h.sessions.GetIdentity(r.Context(), claims.ID)
		if err != nil {
			log.WithError(err).WithField("email", claims.Email).Error("error looking up identity")
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if identity == nil {
			http.Error(w, "Session expired", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		ctx = context.WithValue(ctx, tokenIDKey, claims.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after JWTAuthMiddleware.
func (h *APIHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r.Context()).IsAdmin() {
			http.Error(w, "Admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.WithError(err).WithField("email", req.Email).Error("error getting user")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, tokenID, err := h.tokens.Generate(user)
	if err != nil {
		log.WithError(err).WithField("email", user.Email).Error("error generating token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	identity := session.Identity{UserID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}
	if err := h.sessions.SetIdentity(r.Context(), tokenID, identity, h.tokens.TTL()); err != nil {
		log.WithError(err).WithField("email", user.Email).Error("error storing identity")
		http.Error(w, "Failed to sign in", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, _ := r.Context().Value(tokenIDKey).(string)
	if err := h.sessions.ClearIdentity(r.Context(), tokenID); err != nil {
		log.WithError(err).Error("error clearing identity")
		http.Error(w, "Failed to sign out", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("error encoding response")
	}
}

// writeStoreError maps a store failure to a status. Anything but a missing
// row is logged and reported as a server error.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	log.WithError(err).Errorf("error handling %s", what)
	http.Error(w, "Failed to process "+what, http.StatusInternalServerError)
}
