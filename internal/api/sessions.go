package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/core"
)

type SessionResponse struct {
	*core.State
	TypingDelayMS int64 `json:"typing_delay_ms"`
}

func (h *APIHandler) sessionResponse(st *core.State) SessionResponse {
	return SessionResponse{State: st, TypingDelayMS: h.chatService.TypingDelay().Milliseconds()}
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.chatService.StartSession(r.Context())
	if err != nil {
		log.WithError(err).Error("error creating session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h.sessionResponse(st))
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	st, err := h.chatService.GetSession(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(st))
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessageHandler accepts empty content; it is answered like any query
// that matches nothing.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := h.chatService.PostMessage(r.Context(), sessionID, req.Content)
	if err != nil {
		writeSessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type StepOutcomeRequest struct {
	Worked     bool  `json:"worked"`
	QuestionID int64 `json:"question_id"`
	Step       int   `json:"step"`
}

func (h *APIHandler) StepOutcomeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req StepOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.QuestionID == 0 || req.Step < 1 {
		http.Error(w, "question_id and step are required", http.StatusBadRequest)
		return
	}

	reply, err := h.chatService.PostStepOutcome(r.Context(), sessionID, req.Worked, req.QuestionID, req.Step)
	if err != nil {
		writeSessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *APIHandler) ResetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	st, err := h.chatService.ResetSession(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(st))
}

func (h *APIHandler) SaveConversationHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conv, err := h.chatService.SaveConversation(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.chatService.DeleteSession(r.Context(), sessionID); err != nil {
		writeSessionError(w, err, sessionID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, err error, sessionID string) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, core.ErrSessionBusy):
		http.Error(w, "Session is busy, wait for the current reply", http.StatusConflict)
	default:
		log.WithError(err).WithField("session", sessionID).Error("error handling session request")
		http.Error(w, "Failed to process session request", http.StatusInternalServerError)
	}
}
