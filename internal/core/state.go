package core

import (
	"time"

	"techsupport.dev/assistant/internal/store"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

const welcomeMessageID = "welcome"

// ChatMessage is one entry of a session's append-only log. QuestionID and Step
// are set on bot messages that present a troubleshooting step; ShowActions
// tells the UI to offer the "it worked" / "still not working" buttons.
type ChatMessage struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	QuestionID  *int64    `json:"question_id,omitempty"`
	Step        *int      `json:"step,omitempty"`
	ShowActions bool      `json:"show_actions,omitempty"`
}

// State is one session's conversation. CurrentStep is 0 exactly when
// CurrentQuestion is nil; only enterStep and toIdle change either field.
type State struct {
	SessionID       string          `json:"session_id"`
	CurrentQuestion *store.Question `json:"current_question"`
	CurrentStep     int             `json:"current_step"`
	Messages        []ChatMessage   `json:"messages"`
	IsTyping        bool            `json:"is_typing"`
}

func (s *State) Idle() bool {
	return s.CurrentQuestion == nil
}

func (s *State) enterStep(q store.Question, step int) {
	s.CurrentQuestion = &q
	s.CurrentStep = step
}

func (s *State) toIdle() {
	s.CurrentQuestion = nil
	s.CurrentStep = 0
}

// Clone returns a copy that shares no mutable memory with s.
func (s *State) Clone() *State {
	c := *s
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		q.Keywords = append([]string(nil), q.Keywords...)
		c.CurrentQuestion = &q
	}
	c.Messages = append([]ChatMessage(nil), s.Messages...)
	return &c
}
