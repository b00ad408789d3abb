package core

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techsupport.dev/assistant/internal/knowledge"
	"techsupport.dev/assistant/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeKB serves a fixed question list; stepErr and listErr simulate an
// unreachable knowledge source.
type fakeKB struct {
	questions []store.Question
	steps     map[int64][]store.Solution
	listErr   error
	stepErr   error
}

func (f *fakeKB) ListQuestions(context.Context) ([]store.Question, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.questions, nil
}

func (f *fakeKB) GetSolutionStep(_ context.Context, questionID int64, step int) (*store.Solution, error) {
	if f.stepErr != nil {
		return nil, f.stepErr
	}
	for _, s := range f.steps[questionID] {
		if s.Step == step {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func newTestAssistant(kb KnowledgeBase) *Assistant {
	a := NewAssistant(kb, NewMatcher(samplePatterns()))
	a.now = func() time.Time { return fixedNow }
	return a
}

func sampleAssistant() *Assistant {
	ds := knowledge.DefaultDataset()
	return newTestAssistant(knowledge.NewRepository(nil, ds, time.Second))
}

func requireConsistent(t *testing.T, st *State) {
	t.Helper()
	require.Equal(t, st.CurrentQuestion == nil, st.CurrentStep == 0,
		"current step %d does not agree with current question %v", st.CurrentStep, st.CurrentQuestion)
}

func lastMessage(st *State) ChatMessage {
	return st.Messages[len(st.Messages)-1]
}

func TestAssistant_NewStateAndReset(t *testing.T) {
	a := sampleAssistant()
	st := a.NewState("s1")

	require.Len(t, st.Messages, 1)
	assert.Equal(t, welcomeMessageID, st.Messages[0].ID)
	assert.Equal(t, RoleBot, st.Messages[0].Role)
	assert.Equal(t, welcomeText, st.Messages[0].Content)
	assert.True(t, st.Idle())
	requireConsistent(t, st)

	a.SubmitUserInput(context.Background(), st, "boot")
	require.False(t, st.Idle())

	a.Reset(st)
	once := st.Clone()
	a.Reset(st)
	assert.Equal(t, once, st)
	assert.True(t, st.Idle())
	assert.Equal(t, "s1", st.SessionID)
	requireConsistent(t, st)
}

func TestAssistant_ResetUnderRunningClock(t *testing.T) {
	a := sampleAssistant()
	clock := fixedNow
	a.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	st := a.NewState("s1")
	welcomed := st.Messages[0].Timestamp
	a.SubmitUserInput(context.Background(), st, "boot")

	a.Reset(st)
	once := st.Clone()
	a.Reset(st)
	assert.Equal(t, once, st)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, welcomed, st.Messages[0].Timestamp)

	// A log that lost its welcome message gets a fresh one.
	st.Messages = nil
	a.Reset(st)
	require.Len(t, st.Messages, 1)
	assert.True(t, st.Messages[0].Timestamp.After(welcomed))
}

func TestAssistant_SingleMatchPresentsFirstStep(t *testing.T) {
	a := sampleAssistant()
	st := a.NewState("s1")

	emitted := a.SubmitUserInput(context.Background(), st, "boot")
	require.Len(t, emitted, 2)
	assert.Equal(t, RoleUser, emitted[0].Role)
	assert.Equal(t, "boot", emitted[0].Content)

	bot := emitted[1]
	assert.Equal(t, RoleBot, bot.Role)
	assert.Contains(t, bot.Content, "Computer won't boot")
	assert.Contains(t, bot.Content, "Check if the power cable is properly connected")
	assert.True(t, bot.ShowActions)
	require.NotNil(t, bot.QuestionID)
	require.NotNil(t, bot.Step)
	assert.Equal(t, int64(1), *bot.QuestionID)
	assert.Equal(t, 1, *bot.Step)

	require.NotNil(t, st.CurrentQuestion)
	assert.Equal(t, int64(1), st.CurrentQuestion.ID)
	assert.Equal(t, 1, st.CurrentStep)
	assert.Len(t, st.Messages, 3)
	requireConsistent(t, st)
}

func TestAssistant_NumericSelection(t *testing.T) {
	a := sampleAssistant()
	st := a.NewState("s1")

	a.SubmitUserInput(context.Background(), st, "3")
	require.NotNil(t, st.CurrentQuestion)
	assert.Equal(t, "No internet connection", st.CurrentQuestion.Title)
	assert.Equal(t, 1, st.CurrentStep)
	assert.Contains(t, lastMessage(st).Content, "Restart your router")
}

func TestAssistant_StepWalk(t *testing.T) {
	ctx := context.Background()
	a := sampleAssistant()
	st := a.NewState("s1")
	a.SubmitUserInput(ctx, st, "boot")

	emitted := a.SubmitStepOutcome(ctx, st, false, 1, 1)
	require.Len(t, emitted, 1)
	assert.Contains(t, emitted[0].Content, "Try a different power outlet")
	assert.Equal(t, 2, *emitted[0].Step)
	assert.Equal(t, 2, st.CurrentStep)
	requireConsistent(t, st)

	a.SubmitStepOutcome(ctx, st, false, 1, 2)
	assert.Equal(t, 3, st.CurrentStep)

	emitted = a.SubmitStepOutcome(ctx, st, false, 1, 3)
	require.Len(t, emitted, 1)
	assert.Equal(t, exhaustedText, emitted[0].Content)
	assert.False(t, emitted[0].ShowActions)
	assert.True(t, st.Idle())
	requireConsistent(t, st)
}

func TestAssistant_StepWorked(t *testing.T) {
	ctx := context.Background()
	a := sampleAssistant()
	st := a.NewState("s1")
	a.SubmitUserInput(ctx, st, "slow")

	emitted := a.SubmitStepOutcome(ctx, st, true, 4, 1)
	require.Len(t, emitted, 1)
	assert.Equal(t, workedText, emitted[0].Content)
	assert.True(t, st.Idle())
	requireConsistent(t, st)
}

func TestAssistant_StaleOutcomeChangesNothing(t *testing.T) {
	ctx := context.Background()
	a := sampleAssistant()

	st := a.NewState("s1")
	emitted := a.SubmitStepOutcome(ctx, st, false, 1, 1)
	require.Len(t, emitted, 1)
	assert.Equal(t, staleStepText, emitted[0].Content)
	assert.True(t, st.Idle())

	a.SubmitUserInput(ctx, st, "boot")
	a.SubmitStepOutcome(ctx, st, false, 1, 1)
	require.Equal(t, 2, st.CurrentStep)

	// The step-1 buttons of an earlier message are no longer live.
	emitted = a.SubmitStepOutcome(ctx, st, true, 1, 1)
	assert.Equal(t, staleStepText, emitted[0].Content)
	assert.Equal(t, 2, st.CurrentStep)
	assert.Equal(t, int64(1), st.CurrentQuestion.ID)

	emitted = a.SubmitStepOutcome(ctx, st, false, 3, 2)
	assert.Equal(t, staleStepText, emitted[0].Content)
	assert.Equal(t, int64(1), st.CurrentQuestion.ID)
	requireConsistent(t, st)
}

func TestAssistant_NoMatch(t *testing.T) {
	a := sampleAssistant()
	st := a.NewState("s1")

	emitted := a.SubmitUserInput(context.Background(), st, "xyzzy nonsense")
	require.Len(t, emitted, 2)
	assert.Contains(t, emitted[1].Content, "couldn't find a specific solution")
	assert.True(t, st.Idle())
}

func TestAssistant_EmptyInputAddsNoUserMessage(t *testing.T) {
	a := sampleAssistant()
	st := a.NewState("s1")

	emitted := a.SubmitUserInput(context.Background(), st, "   ")
	require.Len(t, emitted, 1)
	assert.Equal(t, RoleBot, emitted[0].Role)
	assert.Equal(t, noMatchText, emitted[0].Content)
}

func TestAssistant_SeveralCandidates(t *testing.T) {
	ctx := context.Background()
	a := sampleAssistant()
	st := a.NewState("s1")

	emitted := a.SubmitUserInput(ctx, st, "computer")
	require.Len(t, emitted, 2)
	assert.Contains(t, emitted[1].Content, "1. Computer won't boot")
	assert.Contains(t, emitted[1].Content, "4. Computer running slow")
	assert.True(t, st.Idle())

	a.SubmitUserInput(ctx, st, "4")
	require.NotNil(t, st.CurrentQuestion)
	assert.Equal(t, "Computer running slow", st.CurrentQuestion.Title)
}

func TestAssistant_NewInputRestartsLookup(t *testing.T) {
	ctx := context.Background()
	a := sampleAssistant()
	st := a.NewState("s1")

	a.SubmitUserInput(ctx, st, "boot")
	a.SubmitStepOutcome(ctx, st, false, 1, 1)
	require.Equal(t, 2, st.CurrentStep)

	a.SubmitUserInput(ctx, st, "xyzzy")
	assert.True(t, st.Idle())
	requireConsistent(t, st)
}

func TestAssistant_HelpfulLinks(t *testing.T) {
	ctx := context.Background()
	a := sampleAssistant()
	st := a.NewState("s1")
	a.SubmitUserInput(ctx, st, "3")
	a.SubmitStepOutcome(ctx, st, false, 3, 1)

	emitted := a.SubmitStepOutcome(ctx, st, false, 3, 2)
	require.Len(t, emitted, 1)
	assert.Contains(t, emitted[0].Content, "Helpful links:")
}

func TestAssistant_KnowledgeFailures(t *testing.T) {
	ctx := context.Background()
	offline := errors.New("connection refused")
	q := store.Question{ID: 7, Title: "Printer offline", Keywords: []string{"printer"}}

	t.Run("search", func(t *testing.T) {
		a := newTestAssistant(&fakeKB{listErr: offline})
		st := a.NewState("s1")
		emitted := a.SubmitUserInput(ctx, st, "printer")
		require.Len(t, emitted, 2)
		assert.Equal(t, searchErrorText, emitted[1].Content)
		assert.True(t, st.Idle())
	})

	t.Run("first step", func(t *testing.T) {
		a := newTestAssistant(&fakeKB{questions: []store.Question{q}, stepErr: offline})
		st := a.NewState("s1")
		a.SubmitUserInput(ctx, st, "printer")
		assert.Equal(t, firstStepErrorText, lastMessage(st).Content)
		assert.True(t, st.Idle())
	})

	t.Run("no steps", func(t *testing.T) {
		a := newTestAssistant(&fakeKB{questions: []store.Question{q}})
		st := a.NewState("s1")
		a.SubmitUserInput(ctx, st, "printer")
		assert.Equal(t, noStepsText, lastMessage(st).Content)
		assert.True(t, st.Idle())
	})

	t.Run("next step", func(t *testing.T) {
		kb := &fakeKB{
			questions: []store.Question{q},
			steps:     map[int64][]store.Solution{7: {{ID: 1, QuestionID: 7, Step: 1, Text: "Turn the printer off and on.", Type: store.SolutionText}}},
		}
		a := newTestAssistant(kb)
		st := a.NewState("s1")
		a.SubmitUserInput(ctx, st, "printer")
		require.Equal(t, 1, st.CurrentStep)

		kb.stepErr = offline
		a.SubmitStepOutcome(ctx, st, false, 7, 1)
		assert.Equal(t, nextStepErrorText, lastMessage(st).Content)
		assert.True(t, st.Idle())
		requireConsistent(t, st)
	})
}
