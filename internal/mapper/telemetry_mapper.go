package mapper

import (
	"procsight/internal/dto"
	"procsight/pkg/telemetry"
)

type TelemetryMapper struct{}

func NewTelemetryMapper() *TelemetryMapper {
	return &TelemetryMapper{}
}

func (m *TelemetryMapper) RowToDTO(r telemetry.Row) dto.TelemetryRowDTO {
	return dto.TelemetryRowDTO{
		Timestamp:   r.Timestamp,
		ProcessID:   r.ProcessID,
		Type:        r.Type,
		Name:        r.Name,
		CPUPercent:  r.CPUPercent,
		MemoryMB:    r.MemoryMB,
		NetworkKBps: r.NetworkKBps,
	}
}

func (m *TelemetryMapper) RollingLogToResponse(l telemetry.RollingLog) *dto.TelemetryResponse {
	rows := make([]dto.TelemetryRowDTO, 0, len(l.Rows))
	for _, r := range l.Rows {
		rows = append(rows, m.RowToDTO(r))
	}
	return &dto.TelemetryResponse{
		Header:  headerOf(l),
		Rows:    rows,
		MaxRows: l.MaxRows,
		Text:    l.String(),
	}
}

// SnapshotToResponses lists processes in ascending id order, named the way the log names them.
func (m *TelemetryMapper) SnapshotToResponses(s telemetry.Snapshot) []dto.ProcessResponse {
	out := make([]dto.ProcessResponse, 0, len(s))
	for _, id := range s.IDs() {
		rec := s[id].Normalize()
		row := telemetry.FormatRecord("", id, rec)

		tasks := make([]string, 0, len(rec.Tasks))
		for _, t := range rec.Tasks {
			tasks = append(tasks, t.Title)
		}

		out = append(out, dto.ProcessResponse{
			Id:                 id,
			OsProcessId:        rec.OSProcessID,
			Type:               row.Type,
			Name:               row.Name,
			CPUPercent:         row.CPUPercent,
			PrivateMemoryBytes: rec.PrivateMemoryBytes,
			NetworkKBps:        row.NetworkKBps,
			Tasks:              tasks,
		})
	}
	return out
}

func headerOf(l telemetry.RollingLog) string {
	if l.Header == "" {
		return telemetry.Header
	}
	return l.Header
}
