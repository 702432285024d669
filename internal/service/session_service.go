package service

import (
	"context"
	"errors"
	"time"

	"procsight/internal/dto"
	"procsight/pkg/session"
)

var ErrNoLocalSession = errors.New("the remote backend has no local session")

type ISessionService interface {
	GetState(ctx context.Context) *dto.SessionStateResponse
	Restart(ctx context.Context) (*dto.SessionStateResponse, error)
}

type sessionService struct {
	// nil when chat runs on the remote backend
	manager *session.Manager
	backend string
	model   string
}

func NewSessionService(manager *session.Manager, backend, model string) ISessionService {
	return &sessionService{manager: manager, backend: backend, model: model}
}

func (s *sessionService) GetState(ctx context.Context) *dto.SessionStateResponse {
	if s.manager == nil {
		return &dto.SessionStateResponse{
			Backend:   s.backend,
			Status:    string(session.StatusReady),
			Label:     "Remote API",
			Model:     s.model,
			UpdatedAt: time.Now(),
		}
	}

	st := s.manager.State()
	return &dto.SessionStateResponse{
		Backend:         s.backend,
		Status:          string(st.Status),
		Label:           st.Label,
		Detail:          st.Detail,
		Model:           s.model,
		Temperature:     st.Temperature,
		TopK:            st.TopK,
		MaxOutputTokens: st.MaxOutputTokens,
		UpdatedAt:       st.UpdatedAt,
	}
}

// Restart re-runs acquisition. Acquisition failures are reflected in the
// returned state rather than the error.
func (s *sessionService) Restart(ctx context.Context) (*dto.SessionStateResponse, error) {
	if s.manager == nil {
		return nil, ErrNoLocalSession
	}
	_ = s.manager.Restart(ctx)
	return s.GetState(ctx), nil
}
