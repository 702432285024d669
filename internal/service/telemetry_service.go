package service

import (
	"context"

	"procsight/internal/dto"
	"procsight/internal/mapper"
	"procsight/pkg/telemetry"
)

// TelemetryMonitor is the slice of the monitor the HTTP layer reads from.
type TelemetryMonitor interface {
	Read(ctx context.Context) telemetry.RollingLog
	Compact(ctx context.Context) (telemetry.RollingLog, error)
	Latest() telemetry.Snapshot
	Terminate(ctx context.Context, pid int) (bool, error)
}

type ITelemetryService interface {
	GetRollingLog(ctx context.Context) *dto.TelemetryResponse
	Compact(ctx context.Context) (*dto.TelemetryResponse, error)
	ListProcesses(ctx context.Context) []dto.ProcessResponse
	TerminateProcess(ctx context.Context, id int) (*dto.TerminateProcessResponse, error)
}

type telemetryService struct {
	monitor TelemetryMonitor
	mapper  *mapper.TelemetryMapper
}

func NewTelemetryService(monitor TelemetryMonitor) ITelemetryService {
	return &telemetryService{
		monitor: monitor,
		mapper:  mapper.NewTelemetryMapper(),
	}
}

func (s *telemetryService) GetRollingLog(ctx context.Context) *dto.TelemetryResponse {
	return s.mapper.RollingLogToResponse(s.monitor.Read(ctx))
}

func (s *telemetryService) Compact(ctx context.Context) (*dto.TelemetryResponse, error) {
	log, err := s.monitor.Compact(ctx)
	if err != nil {
		return nil, err
	}
	return s.mapper.RollingLogToResponse(log), nil
}

func (s *telemetryService) ListProcesses(ctx context.Context) []dto.ProcessResponse {
	return s.mapper.SnapshotToResponses(s.monitor.Latest())
}

func (s *telemetryService) TerminateProcess(ctx context.Context, id int) (*dto.TerminateProcessResponse, error) {
	ok, err := s.monitor.Terminate(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.TerminateProcessResponse{Id: id, Terminated: ok}, nil
}
