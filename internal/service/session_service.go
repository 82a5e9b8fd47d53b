package service

import (
	"context"
	"errors"

	"github.com/liliang-cn/search4all/internal/domain"
	"github.com/liliang-cn/search4all/internal/repository"
)

// SessionService handles admin operations on stored sessions
type SessionService struct {
	sessionRepo *repository.SessionRepository
}

// NewSessionService creates a new session service
func NewSessionService(sessionRepo *repository.SessionRepository) *SessionService {
	return &SessionService{sessionRepo: sessionRepo}
}

// GetSession returns the record and history stored for a session.
// It returns domain.ErrNotFound when neither exists.
func (s *SessionService) GetSession(ctx context.Context, searchUUID string) (*domain.SessionView, error) {
	view := &domain.SessionView{SearchUUID: searchUUID, History: []domain.Turn{}}

	record, err := s.sessionRepo.GetRecord(ctx, searchUUID)
	switch {
	case err == nil:
		view.Record = record
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	history, err := s.sessionRepo.GetHistory(ctx, searchUUID)
	switch {
	case err == nil:
		view.History = history
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if view.Record == nil && len(view.History) == 0 {
		return nil, domain.ErrNotFound
	}
	return view, nil
}

// DeleteSession removes everything stored for a session
func (s *SessionService) DeleteSession(ctx context.Context, searchUUID string) error {
	return s.sessionRepo.Delete(ctx, searchUUID)
}
