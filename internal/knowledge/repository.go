package knowledge

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/metrics"
	"techsupport.dev/assistant/internal/store"
)

const DefaultTimeout = 3 * time.Second

// Repository is the read path of the knowledge base used by the chat core.
// Every read goes to the store under a timeout; when the store fails the
// fallback dataset answers instead, so a conversation can continue degraded.
type Repository struct {
	store    store.Store
	fallback *Dataset
	timeout  time.Duration
}

// NewRepository builds a repository. s may be nil, in which case the
// fallback dataset serves every read. fallback may be nil, in which case
// store failures are returned to the caller.
func NewRepository(s store.Store, fallback *Dataset, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repository{store: s, fallback: fallback, timeout: timeout}
}

func (r *Repository) ListQuestions(ctx context.Context) ([]store.Question, error) {
	if r.store != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		questions, err := r.store.ListQuestions(ctx)
		if err == nil {
			return questions, nil
		}
		if err := r.degrade("list_questions", err); err != nil {
			return nil, err
		}
	} else if r.fallback == nil {
		return nil, errNoSource
	}
	return r.fallback.ListQuestions(), nil
}

// GetQuestionByPosition returns the n-th question (1-based) in list order,
// or nil when n is out of range.
func (r *Repository) GetQuestionByPosition(ctx context.Context, n int) (*store.Question, error) {
	questions, err := r.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(questions) {
		return nil, nil
	}
	q := questions[n-1]
	return &q, nil
}

func (r *Repository) ListSolutions(ctx context.Context, questionID int64) ([]store.Solution, error) {
	if r.store != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		solutions, err := r.store.ListSolutions(ctx, questionID)
		if err == nil {
			return solutions, nil
		}
		if err := r.degrade("list_solutions", err); err != nil {
			return nil, err
		}
	} else if r.fallback == nil {
		return nil, errNoSource
	}
	return r.fallback.ListSolutions(questionID), nil
}

func (r *Repository) GetSolutionStep(ctx context.Context, questionID int64, step int) (*store.Solution, error) {
	if r.store != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		sol, err := r.store.GetSolutionStep(ctx, questionID, step)
		if err == nil {
			return sol, nil
		}
		if err := r.degrade("get_solution_step", err); err != nil {
			return nil, err
		}
	} else if r.fallback == nil {
		return nil, errNoSource
	}
	return r.fallback.GetSolutionStep(questionID, step), nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]store.Category, error) {
	if r.store != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		categories, err := r.store.ListCategories(ctx)
		if err == nil {
			return categories, nil
		}
		if err := r.degrade("list_categories", err); err != nil {
			return nil, err
		}
	} else if r.fallback == nil {
		return nil, errNoSource
	}
	return r.fallback.ListCategories(), nil
}

var errNoSource = errors.New("no knowledge source configured")

// degrade records a store failure. It returns nil when the fallback dataset
// can take over, or the wrapped failure when there is none.
func (r *Repository) degrade(operation string, err error) error {
	if r.fallback == nil {
		return errors.WithMessagef(err, "knowledge store unavailable during %s", operation)
	}
	metrics.KnowledgeFallbacks.WithLabelValues(operation).Inc()
	log.WithError(err).WithField("operation", operation).Warn("knowledge store unavailable, serving fallback dataset")
	return nil
}
