package telemetry

import (
	"fmt"
	"strings"
)

// DefaultMaxRows bounds the rows kept after compaction.
const DefaultMaxRows = 12

// RollingLog is the persisted telemetry: a header plus the rows of the latest capture.
// The header never counts against MaxRows.
type RollingLog struct {
	Header  string `json:"header"`
	Rows    []Row  `json:"rows"`
	MaxRows int    `json:"max_rows"`
}

func NewRollingLog(maxRows int) RollingLog {
	return RollingLog{Header: Header, Rows: []Row{}, MaxRows: maxRows}
}

func (l RollingLog) Len() int {
	return len(l.Rows)
}

func (l RollingLog) Empty() bool {
	return len(l.Rows) == 0
}

// String renders the blob: header line followed by one line per row.
func (l RollingLog) String() string {
	var b strings.Builder
	header := l.Header
	if header == "" {
		header = Header
	}
	b.WriteString(header)
	for _, r := range l.Rows {
		b.WriteByte('\n')
		b.WriteString(r.String())
	}
	return b.String()
}

// Compacted keeps the last MaxRows rows by position. MaxRows <= 0 disables the bound.
func (l RollingLog) Compacted() RollingLog {
	if l.MaxRows <= 0 || len(l.Rows) <= l.MaxRows {
		return l
	}
	kept := make([]Row, l.MaxRows)
	copy(kept, l.Rows[len(l.Rows)-l.MaxRows:])
	l.Rows = kept
	return l
}

// ParseRollingLog reads a blob written by String.
func ParseRollingLog(blob string, maxRows int) (RollingLog, error) {
	log := NewRollingLog(maxRows)
	if strings.TrimSpace(blob) == "" {
		return log, nil
	}

	lines := strings.Split(blob, "\n")
	log.Header = lines[0]
	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := ParseRow(line)
		if err != nil {
			return NewRollingLog(maxRows), fmt.Errorf("line %d: %w", i+2, err)
		}
		log.Rows = append(log.Rows, row)
	}
	return log, nil
}
