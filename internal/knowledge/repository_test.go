package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techsupport.dev/assistant/internal/store"
)

// brokenStore fails every read the repository makes.
type brokenStore struct {
	store.Store
}

var errOffline = errors.New("connection refused")

func (brokenStore) ListQuestions(context.Context) ([]store.Question, error) { return nil, errOffline }
func (brokenStore) ListCategories(context.Context) ([]store.Category, error) {
	return nil, errOffline
}
func (brokenStore) ListSolutions(context.Context, int64) ([]store.Solution, error) {
	return nil, errOffline
}
func (brokenStore) GetSolutionStep(context.Context, int64, int) (*store.Solution, error) {
	return nil, errOffline
}

// slowStore blocks until the caller's deadline expires.
type slowStore struct {
	store.Store
}

func (slowStore) ListQuestions(ctx context.Context) ([]store.Question, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDefaultDataset(t *testing.T) {
	ds := DefaultDataset()
	require.Len(t, ds.Questions, 4)
	assert.Equal(t, "Computer won't boot", ds.Questions[0].Title)
	assert.Equal(t, "No internet connection", ds.Questions[2].Title)
	assert.Len(t, ds.Patterns, 4)

	steps := ds.ListSolutions(1)
	require.Len(t, steps, 3)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Step)
	}
	assert.Contains(t, ds.GetSolutionStep(1, 1).Text, "Check if the power cable is properly connected")
	assert.Nil(t, ds.GetSolutionStep(1, 4))
	assert.Len(t, ds.ListSolutions(0), 12)
}

func TestParseDatasetRejectsBadSteps(t *testing.T) {
	_, err := ParseDataset([]byte("solutions:\n  - id: 1\n    question_id: 1\n    step: 0\n    text: x\n"))
	assert.Error(t, err)

	_, err = ParseDataset([]byte("solutions:\n  - id: 1\n    question_id: 1\n    step: 1\n    type: video\n    text: x\n"))
	assert.Error(t, err)
}

func TestDataset_PatternRules(t *testing.T) {
	custom := "questions:\n  - id: 1\n    title: Printer offline\n    keywords: [printer]\n"

	ds, err := ParseDataset([]byte(custom))
	require.NoError(t, err)
	assert.Equal(t, DefaultDataset().Patterns, ds.PatternRules())

	ds, err = ParseDataset([]byte(custom + "patterns: []\n"))
	require.NoError(t, err)
	assert.Empty(t, ds.PatternRules())

	ds, err = ParseDataset([]byte(custom + "patterns:\n  - name: printer\n    expr: '\\bprint'\n    question_id: 1\n"))
	require.NoError(t, err)
	require.Len(t, ds.PatternRules(), 1)
	assert.Equal(t, "printer", ds.PatternRules()[0].Name)
}

func TestRepository_GetQuestionByPosition(t *testing.T) {
	ctx := context.Background()
	ds := DefaultDataset()
	repo := NewRepository(nil, ds, time.Second)

	for n := 1; n <= len(ds.Questions); n++ {
		q, err := repo.GetQuestionByPosition(ctx, n)
		require.NoError(t, err)
		require.NotNil(t, q)
		assert.Equal(t, ds.Questions[n-1], *q)
	}
	for _, n := range []int{-1, 0, len(ds.Questions) + 1} {
		q, err := repo.GetQuestionByPosition(ctx, n)
		require.NoError(t, err)
		assert.Nil(t, q, "position %d", n)
	}
}

func TestRepository_FallsBackWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(brokenStore{}, DefaultDataset(), time.Second)

	questions, err := repo.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Len(t, questions, 4)

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 4)

	step, err := repo.GetSolutionStep(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Contains(t, step.Text, "Try a different power outlet")

	steps, err := repo.ListSolutions(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

func TestRepository_TimeoutFallsBack(t *testing.T) {
	repo := NewRepository(slowStore{}, DefaultDataset(), 20*time.Millisecond)

	questions, err := repo.ListQuestions(context.Background())
	require.NoError(t, err)
	assert.Len(t, questions, 4)
}

func TestRepository_NoFallbackReturnsError(t *testing.T) {
	repo := NewRepository(brokenStore{}, nil, time.Second)

	_, err := repo.ListQuestions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errOffline))

	_, err = NewRepository(nil, nil, 0).GetSolutionStep(context.Background(), 1, 1)
	assert.Error(t, err)
}

func TestRepository_ReadsFromStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	n, err := DefaultDataset().Seed(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// A second seed is a no-op.
	n, err = DefaultDataset().Seed(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.CreateQuestion(ctx, &store.Question{Title: "Printer offline", Keywords: []string{"printer"}}))

	repo := NewRepository(s, DefaultDataset(), time.Second)
	q, err := repo.GetQuestionByPosition(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "Printer offline", q.Title)

	step, err := repo.GetSolutionStep(ctx, 3, 3)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, store.SolutionLink, step.Type)
	assert.Len(t, step.HelpfulLinks, 2)
}
