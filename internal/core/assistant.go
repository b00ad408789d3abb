package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/metrics"
	"techsupport.dev/assistant/internal/store"
)

const (
	welcomeText = "Hello! I'm here to help you troubleshoot technical issues. What problem are you experiencing?"

	noMatchText = "I couldn't find a specific solution for your issue. Could you try rephrasing your question or provide more details? " +
		"You can also reply with the number of a known issue. For example, you could ask about 'boot issues', 'network problems', or 'performance issues'."
	searchErrorText = "I'm having trouble processing your request right now. This might be because the support system is offline. " +
		"Please try again in a moment, or try asking about common issues like 'computer won't start', 'no internet', or 'black screen'."
	firstStepText      = "I found a solution for \"%s\". Let's try this first step:\n\n%s"
	noStepsText        = "I found a matching issue but don't have specific steps available. Please contact support for further assistance."
	firstStepErrorText = "I found a matching issue but encountered an error retrieving the solution steps. Please try again or contact support."
	candidatesIntro    = "I found several issues that could match yours:"
	candidatesOutro    = "Reply with the number of the issue that fits best, or describe your problem in more detail."

	workedText        = "Great! I'm glad that worked. Is there anything else I can help you with?"
	nextStepText      = "Let's try the next step:\n\n%s"
	exhaustedText     = "I've exhausted all the troubleshooting steps I have for this issue. I recommend contacting technical support for further assistance. Is there anything else I can help you with?"
	nextStepErrorText = "I encountered an error while trying to get the next troubleshooting step. Please try starting over with your question or contact support directly."
	staleStepText     = "That troubleshooting step is no longer active. Describe your issue again, or reply with the number of a known issue to start over."
)

// KnowledgeBase is what the assistant reads while walking a conversation.
type KnowledgeBase interface {
	ListQuestions(ctx context.Context) ([]store.Question, error)
	GetSolutionStep(ctx context.Context, questionID int64, step int) (*store.Solution, error)
}

// Assistant is the conversation state machine. A session is either idle or
// in a step of one question; every input appends to the log and moves the
// state. Collaborator failures become bot messages and leave the state idle.
type Assistant struct {
	kb      KnowledgeBase
	matcher *Matcher
	now     func() time.Time
}

func NewAssistant(kb KnowledgeBase, matcher *Matcher) *Assistant {
	return &Assistant{kb: kb, matcher: matcher, now: time.Now}
}

// NewState returns an idle session holding only the welcome message.
func (a *Assistant) NewState(sessionID string) *State {
	st := &State{SessionID: sessionID}
	a.Reset(st)
	return st
}

// Reset discards the log and the active question. The welcome message keeps
// its original timestamp, so calling it repeatedly yields the same state.
func (a *Assistant) Reset(st *State) {
	welcomed := a.now()
	if len(st.Messages) > 0 && st.Messages[0].ID == welcomeMessageID {
		welcomed = st.Messages[0].Timestamp
	}
	st.toIdle()
	st.IsTyping = false
	st.Messages = []ChatMessage{{
		ID:        welcomeMessageID,
		Role:      RoleBot,
		Content:   welcomeText,
		Timestamp: welcomed,
	}}
}

// Search runs the matcher against the current question list.
func (a *Assistant) Search(ctx context.Context, query string) ([]Candidate, error) {
	questions, err := a.kb.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	return a.matcher.Match(query, questions), nil
}

// SubmitUserInput handles free text or a question number and returns the
// messages appended to the log, the user's own message first.
func (a *Assistant) SubmitUserInput(ctx context.Context, st *State, text string) []ChatMessage {
	start := len(st.Messages)
	text = strings.TrimSpace(text)
	if text != "" {
		a.appendMessage(st, ChatMessage{Role: RoleUser, Content: text})
	}
	// New input always starts a fresh lookup.
	st.toIdle()

	candidates, err := a.Search(ctx, text)
	if err != nil {
		log.WithError(err).WithField("session", st.SessionID).Error("error searching questions")
		metrics.QueryOutcomes.WithLabelValues(metrics.QueryError).Inc()
		a.botSay(st, searchErrorText)
		return st.Messages[start:]
	}

	switch len(candidates) {
	case 0:
		metrics.QueryOutcomes.WithLabelValues(metrics.QueryNoMatch).Inc()
		a.botSay(st, noMatchText)
	case 1:
		a.startQuestion(ctx, st, candidates[0].Question)
	default:
		metrics.QueryOutcomes.WithLabelValues(metrics.QueryMultiple).Inc()
		a.botSay(st, candidateList(candidates))
	}
	return st.Messages[start:]
}

func (a *Assistant) startQuestion(ctx context.Context, st *State, q store.Question) {
	sol, err := a.kb.GetSolutionStep(ctx, q.ID, 1)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"session": st.SessionID, "question": q.ID}).Error("error fetching first solution step")
		metrics.QueryOutcomes.WithLabelValues(metrics.QueryError).Inc()
		a.botSay(st, firstStepErrorText)
		return
	}
	if sol == nil {
		metrics.QueryOutcomes.WithLabelValues(metrics.QueryNoSteps).Inc()
		a.botSay(st, noStepsText)
		return
	}

	metrics.QueryOutcomes.WithLabelValues(metrics.QuerySingle).Inc()
	st.enterStep(q, 1)
	a.presentStep(st, q.ID, sol, fmt.Sprintf(firstStepText, q.Title, sol.Text))
}

// SubmitStepOutcome applies the user's verdict on the step identified by
// questionID and step. A verdict on anything but the active step is answered
// with guidance and changes nothing.
func (a *Assistant) SubmitStepOutcome(ctx context.Context, st *State, worked bool, questionID int64, step int) []ChatMessage {
	start := len(st.Messages)

	if st.Idle() || st.CurrentQuestion.ID != questionID || st.CurrentStep != step {
		metrics.StepOutcomes.WithLabelValues(metrics.StepStale).Inc()
		a.botSay(st, staleStepText)
		return st.Messages[start:]
	}

	if worked {
		metrics.StepOutcomes.WithLabelValues(metrics.StepWorked).Inc()
		st.toIdle()
		a.botSay(st, workedText)
		return st.Messages[start:]
	}

	next := step + 1
	sol, err := a.kb.GetSolutionStep(ctx, questionID, next)
	switch {
	case err != nil:
		log.WithError(err).WithFields(log.Fields{"session": st.SessionID, "question": questionID, "step": next}).Error("error fetching next solution step")
		metrics.StepOutcomes.WithLabelValues(metrics.StepError).Inc()
		st.toIdle()
		a.botSay(st, nextStepErrorText)
	case sol == nil:
		metrics.StepOutcomes.WithLabelValues(metrics.StepExhausted).Inc()
		st.toIdle()
		a.botSay(st, exhaustedText)
	default:
		metrics.StepOutcomes.WithLabelValues(metrics.StepNext).Inc()
		st.enterStep(*st.CurrentQuestion, next)
		a.presentStep(st, questionID, sol, fmt.Sprintf(nextStepText, sol.Text))
	}
	return st.Messages[start:]
}

func (a *Assistant) presentStep(st *State, questionID int64, sol *store.Solution, content string) {
	if len(sol.HelpfulLinks) > 0 {
		content += "\n\nHelpful links:\n- " + strings.Join(sol.HelpfulLinks, "\n- ")
	}
	qid, step := questionID, sol.Step
	a.appendMessage(st, ChatMessage{
		Role:        RoleBot,
		Content:     content,
		QuestionID:  &qid,
		Step:        &step,
		ShowActions: true,
	})
}

func (a *Assistant) botSay(st *State, content string) {
	a.appendMessage(st, ChatMessage{Role: RoleBot, Content: content})
}

func (a *Assistant) appendMessage(st *State, msg ChatMessage) {
	msg.ID = uuid.NewString()
	msg.Timestamp = a.now()
	st.Messages = append(st.Messages, msg)
}

// candidateList numbers candidates by their position in the full question
// list, so typing a number picks the same question.
func candidateList(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString(candidatesIntro)
	b.WriteString("\n\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", c.Position, c.Question.Title)
	}
	b.WriteString("\n")
	b.WriteString(candidatesOutro)
	return b.String()
}
