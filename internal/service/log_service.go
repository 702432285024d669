package service

import (
	"procsight/internal/dto"
	"procsight/internal/pkg/logger"
)

const defaultLogLimit = 100

type ILogService interface {
	List(req *dto.LogListRequest) ([]dto.LogEntryResponse, error)
}

type logService struct {
	reader logger.LogReader
}

func NewLogService(reader logger.LogReader) ILogService {
	return &logService{reader: reader}
}

func (s *logService) List(req *dto.LogListRequest) ([]dto.LogEntryResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	entries, err := s.reader.GetLogs(req.Level, limit, req.Offset)
	if err != nil {
		return nil, err
	}

	out := make([]dto.LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.LogEntryResponse{
			Level:     e.Level,
			Timestamp: e.Timestamp,
			Module:    e.Module,
			Message:   e.Message,
			Details:   e.Details,
		})
	}
	return out, nil
}
