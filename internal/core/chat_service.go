package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"techsupport.dev/assistant/internal/metrics"
	"techsupport.dev/assistant/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned while another request for the same session
	// is still being handled.
	ErrSessionBusy = errors.New("session is busy")
)

// StateStore persists conversation state between requests. Load returns
// (nil, nil) for an unknown session.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, sessionID string) error
}

// SessionLocker is implemented by state stores shared between server
// instances. While one instance holds a session's lock every other instance
// refuses requests for it. Lock returns ok=false when the lock is taken and
// a token that Unlock must present.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (token string, ok bool, err error)
	Unlock(ctx context.Context, sessionID, token string) error
	Locked(ctx context.Context, sessionID string) (bool, error)
}

// ConversationArchive receives explicitly saved conversation logs.
type ConversationArchive interface {
	CreateConversation(ctx context.Context, c *store.Conversation) error
}

// Reply is what a session operation hands back to the UI: the messages it
// appended and the resulting state.
type Reply struct {
	Messages []ChatMessage `json:"messages"`
	State    *State        `json:"state"`
}

// ChatService owns session lifecycle. Requests for one session are handled
// strictly one at a time; a second request arriving while the first is in
// flight is refused rather than queued. When the state store is a
// SessionLocker the rule holds across instances too.
type ChatService struct {
	assistant   *Assistant
	states      StateStore
	archive     ConversationArchive
	typingDelay time.Duration

	busy sync.Map // session id -> struct{}
}

func NewChatService(assistant *Assistant, states StateStore, archive ConversationArchive, typingDelay time.Duration) *ChatService {
	return &ChatService{
		assistant:   assistant,
		states:      states,
		archive:     archive,
		typingDelay: typingDelay,
	}
}

// TypingDelay is the pause the UI shows a typing indicator for before
// rendering a bot reply.
func (s *ChatService) TypingDelay() time.Duration {
	return s.typingDelay
}

func (s *ChatService) Assistant() *Assistant {
	return s.assistant
}

func (s *ChatService) StartSession(ctx context.Context) (*State, error) {
	st := s.assistant.NewState(uuid.NewString())
	if err := s.states.Save(ctx, st); err != nil {
		return nil, errors.WithMessage(err, "failed to store new session")
	}
	metrics.SessionsStarted.Inc()
	log.WithField("session", st.SessionID).Debug("started chat session")
	return st, nil
}

func (s *ChatService) GetSession(ctx context.Context, sessionID string) (*State, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_, st.IsTyping = s.busy.Load(sessionID)
	if locker, ok := s.states.(SessionLocker); ok && !st.IsTyping {
		locked, err := locker.Locked(ctx, sessionID)
		if err != nil {
			log.WithError(err).WithField("session", sessionID).Warn("could not check session lock")
		}
		st.IsTyping = locked
	}
	return st, nil
}

func (s *ChatService) PostMessage(ctx context.Context, sessionID, content string) (*Reply, error) {
	return s.withSession(ctx, sessionID, func(st *State) []ChatMessage {
		return s.assistant.SubmitUserInput(ctx, st, content)
	})
}

func (s *ChatService) PostStepOutcome(ctx context.Context, sessionID string, worked bool, questionID int64, step int) (*Reply, error) {
	return s.withSession(ctx, sessionID, func(st *State) []ChatMessage {
		return s.assistant.SubmitStepOutcome(ctx, st, worked, questionID, step)
	})
}

func (s *ChatService) ResetSession(ctx context.Context, sessionID string) (*State, error) {
	reply, err := s.withSession(ctx, sessionID, func(st *State) []ChatMessage {
		s.assistant.Reset(st)
		return st.Messages
	})
	if err != nil {
		return nil, err
	}
	return reply.State, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) error {
	leave, err := s.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer leave()
	return s.states.Delete(ctx, sessionID)
}

// SaveConversation archives the session's log. The session itself is left
// untouched and keeps running.
func (s *ChatService) SaveConversation(ctx context.Context, sessionID string) (*store.Conversation, error) {
	if s.archive == nil {
		return nil, errors.New("conversation archive is not configured")
	}
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	conv := &store.Conversation{
		SessionID: st.SessionID,
		Timestamp: time.Now(),
		Messages:  make([]store.ConversationMessage, 0, len(st.Messages)),
	}
	for _, m := range st.Messages {
		conv.Messages = append(conv.Messages, store.ConversationMessage{
			Type:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	if err := s.archive.CreateConversation(ctx, conv); err != nil {
		return nil, errors.WithMessage(err, "failed to archive conversation")
	}
	log.WithFields(log.Fields{"session": sessionID, "conversation": conv.ID}).Info("archived conversation")
	return conv, nil
}

func (s *ChatService) withSession(ctx context.Context, sessionID string, apply func(*State) []ChatMessage) (*Reply, error) {
	leave, err := s.enter(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer leave()

	st, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	emitted := apply(st)
	if err := s.states.Save(ctx, st); err != nil {
		return nil, errors.WithMessage(err, "failed to store session")
	}
	return &Reply{Messages: emitted, State: st}, nil
}

func (s *ChatService) load(ctx context.Context, sessionID string) (*State, error) {
	st, err := s.states.Load(ctx, sessionID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load session")
	}
	if st == nil {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

// enter claims the session for one request and returns the function that
// gives it back.
func (s *ChatService) enter(ctx context.Context, sessionID string) (func(), error) {
	if !s.acquire(sessionID) {
		return nil, ErrSessionBusy
	}
	locker, ok := s.states.(SessionLocker)
	if !ok {
		return func() { s.release(sessionID) }, nil
	}

	token, held, err := locker.Lock(ctx, sessionID)
	if err != nil {
		s.release(sessionID)
		return nil, errors.WithMessage(err, "failed to lock session")
	}
	if !held {
		s.release(sessionID)
		return nil, ErrSessionBusy
	}
	return func() {
		if err := locker.Unlock(context.WithoutCancel(ctx), sessionID, token); err != nil {
			log.WithError(err).WithField("session", sessionID).Warn("could not unlock session")
		}
		s.release(sessionID)
	}, nil
}

func (s *ChatService) acquire(sessionID string) bool {
	_, loaded := s.busy.LoadOrStore(sessionID, struct{}{})
	return !loaded
}

func (s *ChatService) release(sessionID string) {
	s.busy.Delete(sessionID)
}
