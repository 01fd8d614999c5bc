package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/repository"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message text is required")
)

// Service encapsulates conversation state management.
type Service struct {
	repo repository.ChatRepository
	now  func() time.Time
}

// NewService wires the chat service to a repository.
func NewService(repo repository.ChatRepository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSession provisions a new session for the user.
func (s *Service) CreateSession(ctx context.Context, userID string) (chat.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return chat.Session{}, ErrUserRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session, hiding sessions owned by other users.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (chat.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, mapNotFound(err)
	}
	if userID != "" && session.UserID != userID {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// ResolveSession 返回指定会话；未指定时复用用户最近的会话，没有则新建。
func (s *Service) ResolveSession(ctx context.Context, userID, sessionID string) (chat.Session, error) {
	if sessionID != "" {
		return s.GetSession(ctx, userID, sessionID)
	}
	session, err := s.repo.LatestSession(ctx, userID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return chat.Session{}, fmt.Errorf("latest session: %w", err)
	}
	return s.CreateSession(ctx, userID)
}

// SaveMessage appends a message to the session history and returns it with id and timestamp set.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	if strings.TrimSpace(message.Text) == "" && message.Analysis == nil {
		return chat.Message{}, ErrEmptyMessage
	}

	message.ID = ulid.Make().String()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}
	if message.Type == "" {
		message.Type = chat.TypeConversational
	}
	if err := s.repo.AppendMessage(ctx, message); err != nil {
		return chat.Message{}, mapNotFound(err)
	}
	return message, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return messages, nil
}

// ClearHistory 删除会话中的全部消息，会话本身保留。
func (s *Service) ClearHistory(ctx context.Context, sessionID string) (int64, error) {
	deleted, err := s.repo.DeleteMessages(ctx, sessionID)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return deleted, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
