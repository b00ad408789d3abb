package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techsupport.dev/assistant/internal/knowledge"
	"techsupport.dev/assistant/internal/store"
)

func sampleQuestions() []store.Question {
	return knowledge.DefaultDataset().ListQuestions()
}

// samplePatterns compiles the pattern rules shipped with the embedded dataset.
func samplePatterns() []Pattern {
	var patterns []Pattern
	for _, rule := range knowledge.DefaultDataset().PatternRules() {
		p, err := NewPattern(rule.Name, rule.Expr, rule.QuestionID)
		if err != nil {
			panic(err)
		}
		patterns = append(patterns, p)
	}
	return patterns
}

func titles(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Question.Title)
	}
	return out
}

func TestMatcher_Match(t *testing.T) {
	questions := sampleQuestions()
	m := NewMatcher(samplePatterns())

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "keyword", query: "boot", want: []string{"Computer won't boot"}},
		{name: "case is ignored", query: "BOOT", want: []string{"Computer won't boot"}},
		{name: "stop words dropped", query: "I have a problem with my internet", want: []string{"No internet connection"}},
		{name: "partial word", query: "booting", want: []string{"Computer won't boot"}},
		{name: "several candidates keep list order", query: "computer", want: []string{"Computer won't boot", "Computer running slow"}},
		{name: "pattern override", query: "wi-fi down", want: []string{"No internet connection"}},
		{name: "lenient second pass", query: "xyzzy does", want: []string{"Computer won't boot"}},
		{name: "no overlap", query: "xyzzy nonsense", want: nil},
		{name: "only stop words", query: "it is the", want: nil},
		{name: "empty", query: "   ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.query, questions)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestMatcher_Position(t *testing.T) {
	questions := sampleQuestions()
	// Ids are irrelevant to positional lookup.
	questions[2].ID = 300
	m := NewMatcher(nil)

	got := m.Match("3", questions)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Position)
	assert.Equal(t, "No internet connection", got[0].Question.Title)
	assert.Equal(t, int64(300), got[0].Question.ID)

	got = m.Match(" 2 ", questions)
	require.Len(t, got, 1)
	assert.Equal(t, "Black screen or no display", got[0].Question.Title)

	for _, q := range []string{"0", "5", "99999999999999999999999"} {
		assert.Empty(t, m.Match(q, questions), q)
	}
	assert.Empty(t, m.Match("1", nil))
}

func TestMatcher_PositionsFollowList(t *testing.T) {
	got := NewMatcher(nil).Match("computer", sampleQuestions())
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, 4, got[1].Position)
}

func TestMatcher_PartialNeedsFourLetters(t *testing.T) {
	questions := []store.Question{
		{ID: 1, Title: "Printer jam", Keywords: []string{"printer"}},
	}
	m := NewMatcher(nil)

	assert.Len(t, m.Match("printers", questions), 1)
	assert.Empty(t, m.Match("jams", []store.Question{{ID: 1, Title: "Jam", Keywords: []string{"jam"}}}))
}

func TestMatcher_PatternsWithoutKeywords(t *testing.T) {
	questions := sampleQuestions()

	assert.Empty(t, NewMatcher(nil).Match("wi-fi down", questions))
	assert.Equal(t, []string{"No internet connection"}, titles(NewMatcher(samplePatterns()).Match("wi-fi down", questions)))
}

func TestMatcher_Deterministic(t *testing.T) {
	questions := sampleQuestions()
	m := NewMatcher(samplePatterns())

	for _, q := range []string{"boot", "computer", "slow screen", "3", "xyzzy"} {
		assert.Equal(t, m.Match(q, questions), m.Match(q, questions), q)
	}
}

func TestNewPattern(t *testing.T) {
	p, err := NewPattern("printer", `\bprint(er|ing)?\b`, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.QuestionID)

	_, err = NewPattern("broken", `(`, 1)
	assert.Error(t, err)
}
