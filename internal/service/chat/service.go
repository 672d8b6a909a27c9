package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

// Service keeps play sessions and their append-only transcripts.
type Service struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

// CreateSession provisions the session id, or a random one when id is
// empty. An existing session is returned as is with created=false.
func (s *Service) CreateSession(_ context.Context, id string) (session chat.Session, created bool, err error) {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[id]; ok {
		return existing, false, nil
	}

	session = chat.Session{
		ID:        id,
		Stage:     chat.StageSetupParent,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[id] = session
	s.messages[id] = make([]chat.Message, 0, 16)
	return session, true, nil
}

// UpdateSession replaces the stored setup of an existing session.
func (s *Service) UpdateSession(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	session.CreatedAt = current.CreatedAt
	s.sessions[session.ID] = session
	return nil
}

// DeleteSession forgets the session and its transcript.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

// SaveMessage appends a message to the session history and returns it with
// its assigned id.
func (s *Service) SaveMessage(_ context.Context, sessionID string, message chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	s.nextID++
	message.ID = s.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[sessionID] = append(s.messages[sessionID], message)
	return message, nil
}

// PatchImage attaches image to message msgID. It fails with
// ErrMessageNotFound once the transcript holding the message was cleared.
func (s *Service) PatchImage(_ context.Context, sessionID string, msgID int64, image string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ID == msgID {
			messages[i].Image = image
			return messages[i], nil
		}
	}
	return chat.Message{}, ErrMessageNotFound
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// ClearTranscript drops every message of the session. Ids are never reused.
func (s *Service) ClearTranscript(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[sessionID]; !ok {
		return ErrSessionNotFound
	}
	s.messages[sessionID] = make([]chat.Message, 0, 16)
	return nil
}
