package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/core"
)

func (h *APIHandler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := h.knowledge.ListCategories(r.Context())
	if err != nil {
		log.WithError(err).Error("error listing categories")
		http.Error(w, "Failed to list categories", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// ListQuestionsHandler lists every question, or runs the matcher when a q
// parameter is given.
func (h *APIHandler) ListQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	if query := r.URL.Query().Get("q"); query != "" {
		candidates, err := h.chatService.Assistant().Search(r.Context(), query)
		if err != nil {
			log.WithError(err).Error("error searching questions")
			http.Error(w, "Failed to search questions", http.StatusInternalServerError)
			return
		}
		if candidates == nil {
			candidates = []core.Candidate{}
		}
		writeJSON(w, http.StatusOK, candidates)
		return
	}

	questions, err := h.knowledge.ListQuestions(r.Context())
	if err != nil {
		log.WithError(err).Error("error listing questions")
		http.Error(w, "Failed to list questions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *APIHandler) QuestionByPositionHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.Error(w, "Position must be a number", http.StatusBadRequest)
		return
	}

	q, err := h.knowledge.GetQuestionByPosition(r.Context(), n)
	if err != nil {
		log.WithError(err).WithField("position", n).Error("error getting question")
		http.Error(w, "Failed to get question", http.StatusInternalServerError)
		return
	}
	if q == nil {
		http.Error(w, "Question not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListSolutionsHandler returns a question's steps, or one step when step is
// given.
func (h *APIHandler) ListSolutionsHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	questionID, err := strconv.ParseInt(params.Get("question_id"), 10, 64)
	if err != nil || questionID < 1 {
		http.Error(w, "question_id is required", http.StatusBadRequest)
		return
	}

	if raw := params.Get("step"); raw != "" {
		step, err := strconv.Atoi(raw)
		if err != nil || step < 1 {
			http.Error(w, "step must be a positive number", http.StatusBadRequest)
			return
		}
		sol, err := h.knowledge.GetSolutionStep(r.Context(), questionID, step)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"question": questionID, "step": step}).Error("error getting solution step")
			http.Error(w, "Failed to get solution", http.StatusInternalServerError)
			return
		}
		if sol == nil {
			http.Error(w, "Solution not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, sol)
		return
	}

	solutions, err := h.knowledge.ListSolutions(r.Context(), questionID)
	if err != nil {
		log.WithError(err).WithField("question", questionID).Error("error listing solutions")
		http.Error(w, "Failed to list solutions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, solutions)
}
