package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techsupport.dev/assistant/internal/config"
	"techsupport.dev/assistant/internal/core"
	"techsupport.dev/assistant/internal/knowledge"
	"techsupport.dev/assistant/internal/store"
)

func TestBuildPatterns(t *testing.T) {
	ds := knowledge.DefaultDataset()
	patterns, err := buildPatterns(ds)
	require.NoError(t, err)
	require.Len(t, patterns, 4)

	got := core.NewMatcher(patterns).Match("wi-fi down", ds.ListQuestions())
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Question.ID)

	ds.Patterns = append(ds.Patterns, knowledge.PatternRule{Name: "broken", Expr: "(", QuestionID: 1})
	_, err = buildPatterns(ds)
	assert.Error(t, err)
}

func TestBuildPatterns_DatasetWithoutPatterns(t *testing.T) {
	ds, err := knowledge.ParseDataset([]byte("questions:\n  - id: 3\n    title: No internet connection\n    keywords: [internet]\n"))
	require.NoError(t, err)

	patterns, err := buildPatterns(ds)
	require.NoError(t, err)
	require.Len(t, patterns, 4)
	got := core.NewMatcher(patterns).Match("wi-fi down", ds.ListQuestions())
	require.Len(t, got, 1)
	assert.Equal(t, "No internet connection", got[0].Question.Title)

	ds.Patterns = []knowledge.PatternRule{}
	patterns, err = buildPatterns(ds)
	require.NoError(t, err)
	assert.Empty(t, patterns)
	assert.Empty(t, core.NewMatcher(patterns).Match("wi-fi down", ds.ListQuestions()))
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	config.AppConfig = config.Config{AdminEmail: "Admin@Example.com", AdminPassword: "s3cret", AdminName: "Admin"}
	require.NoError(t, ensureAdmin(ctx, s))
	// A second run leaves the existing account alone.
	require.NoError(t, ensureAdmin(ctx, s))

	u, err := s.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsAdmin())
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	config.AppConfig = config.Config{}
	assert.NoError(t, ensureAdmin(ctx, s))
}
