package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/store"
)

const defaultConversationPage = 50

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *APIHandler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var c store.Category
	if !decodeBody(w, r, &c) {
		return
	}
	if c.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}
	c.ID = 0
	if err := h.store.CreateCategory(r.Context(), &c); err != nil {
		writeStoreError(w, err, "category")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCategoryHandler, like the other updates, decodes the body over the
// stored record so omitted fields keep their values. The id never changes.
func (h *APIHandler) UpdateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := h.store.GetCategory(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "category")
		return
	}
	if c == nil {
		http.Error(w, "category not found", http.StatusNotFound)
		return
	}
	if !decodeBody(w, r, c) {
		return
	}
	c.ID = id
	if err := h.store.UpdateCategory(r.Context(), c); err != nil {
		writeStoreError(w, err, "category")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *APIHandler) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteCategory(r.Context(), id); err != nil {
		writeStoreError(w, err, "category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) CreateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var q store.Question
	if !decodeBody(w, r, &q) {
		return
	}
	if q.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	q.ID = 0
	if err := h.store.CreateQuestion(r.Context(), &q); err != nil {
		writeStoreError(w, err, "question")
		return
	}
	log.WithFields(log.Fields{"question": q.ID, "admin": identityFrom(r.Context()).Email}).Info("question created")
	writeJSON(w, http.StatusCreated, q)
}

func (h *APIHandler) UpdateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "question")
		return
	}
	if q == nil {
		http.Error(w, "question not found", http.StatusNotFound)
		return
	}
	if !decodeBody(w, r, q) {
		return
	}
	q.ID = id
	if err := h.store.UpdateQuestion(r.Context(), q); err != nil {
		writeStoreError(w, err, "question")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *APIHandler) DeleteQuestionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteQuestion(r.Context(), id); err != nil {
		writeStoreError(w, err, "question")
		return
	}
	log.WithFields(log.Fields{"question": id, "admin": identityFrom(r.Context()).Email}).Info("question deleted")
	w.WriteHeader(http.StatusNoContent)
}

func validSolution(w http.ResponseWriter, s *store.Solution) bool {
	if s.Type == "" {
		s.Type = store.SolutionText
	}
	switch {
	case s.QuestionID < 1:
		http.Error(w, "questionId is required", http.StatusBadRequest)
	case s.Step < 1:
		http.Error(w, "step must be 1 or greater", http.StatusBadRequest)
	case !s.Type.Valid():
		http.Error(w, "type must be text, image or link", http.StatusBadRequest)
	default:
		return true
	}
	return false
}

func (h *APIHandler) CreateSolutionHandler(w http.ResponseWriter, r *http.Request) {
	var s store.Solution
	if !decodeBody(w, r, &s) || !validSolution(w, &s) {
		return
	}
	s.ID = 0
	if err := h.store.CreateSolution(r.Context(), &s); err != nil {
		writeStoreError(w, err, "solution")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *APIHandler) UpdateSolutionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	s, err := h.store.GetSolution(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "solution")
		return
	}
	if s == nil {
		http.Error(w, "solution not found", http.StatusNotFound)
		return
	}
	if !decodeBody(w, r, s) || !validSolution(w, s) {
		return
	}
	s.ID = id
	if err := h.store.UpdateSolution(r.Context(), s); err != nil {
		writeStoreError(w, err, "solution")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *APIHandler) DeleteSolutionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteSolution(r.Context(), id); err != nil {
		writeStoreError(w, err, "solution")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := strconv.Atoi(params.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultConversationPage
	}
	offset, err := strconv.Atoi(params.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	conversations, err := h.store.ListConversations(r.Context(), limit, offset)
	if err != nil {
		writeStoreError(w, err, "conversations")
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}
