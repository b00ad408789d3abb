package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by updates and deletes that touched no row.
// Lookups report a missing row as a nil result instead.
var ErrNotFound = errors.New("not found")

// Store is the knowledge base, user and conversation persistence used by the
// rest of the service. Lookups return (nil, nil) when nothing matches.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id int64) error

	// ListQuestions returns questions in id order; that order defines the
	// 1-based positions users can type.
	ListQuestions(ctx context.Context) ([]Question, error)
	GetQuestion(ctx context.Context, id int64) (*Question, error)
	CreateQuestion(ctx context.Context, q *Question) error
	UpdateQuestion(ctx context.Context, q *Question) error
	DeleteQuestion(ctx context.Context, id int64) error

	// ListSolutions returns the steps of one question sorted by step, or all
	// solutions when questionID is 0.
	ListSolutions(ctx context.Context, questionID int64) ([]Solution, error)
	GetSolution(ctx context.Context, id int64) (*Solution, error)
	GetSolutionStep(ctx context.Context, questionID int64, step int) (*Solution, error)
	CreateSolution(ctx context.Context, s *Solution) error
	UpdateSolution(ctx context.Context, s *Solution) error
	DeleteSolution(ctx context.Context, id int64) error

	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error

	CreateConversation(ctx context.Context, c *Conversation) error
	ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error)

	Close() error
}

// Open picks the backend from the DSN: postgres URLs go to PostgresStore,
// anything else is treated as a SQLite data source.
func Open(dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(dsn)
	}
	return NewSQLiteStore(dsn)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
