package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Header is the first line of every rolling log.
const Header = "Timestamp\tProcess ID\tType\tName\tCPU (%)\tMemory (MB)\tNetwork (KB/s)"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Row is one formatted process line. Numeric fields are rounded to one decimal.
type Row struct {
	Timestamp   string  `json:"timestamp"`
	ProcessID   int     `json:"process_id"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    float64 `json:"memory_mb"`
	NetworkKBps float64 `json:"network_kbps"`
}

func (r Row) String() string {
	return strings.Join([]string{
		r.Timestamp,
		strconv.Itoa(r.ProcessID),
		r.Type,
		r.Name,
		oneDecimal(r.CPUPercent),
		oneDecimal(r.MemoryMB),
		oneDecimal(r.NetworkKBps),
	}, "\t")
}

// ParseRow reads a line produced by Row.String.
func ParseRow(line string) (Row, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 7 {
		return Row{}, fmt.Errorf("parse row: want 7 fields, got %d", len(parts))
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return Row{}, fmt.Errorf("parse row: process id: %w", err)
	}

	nums := make([]float64, 3)
	for i, p := range parts[4:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Row{}, fmt.Errorf("parse row: field %d: %w", i+4, err)
		}
		nums[i] = v
	}

	return Row{
		Timestamp:   parts[0],
		ProcessID:   id,
		Type:        parts[2],
		Name:        parts[3],
		CPUPercent:  nums[0],
		MemoryMB:    nums[1],
		NetworkKBps: nums[2],
	}, nil
}

// Formatter converts snapshots into rows stamped with the capture time.
type Formatter struct {
	now func() time.Time
}

func NewFormatter(now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{now: now}
}

// Format returns one row per process in ascending process id order.
func (f *Formatter) Format(s Snapshot) []Row {
	ts := f.now().UTC().Format(timestampLayout)
	rows := make([]Row, 0, len(s))
	for _, id := range s.IDs() {
		rows = append(rows, FormatRecord(ts, id, s[id]))
	}
	return rows
}

// FormatRecord applies the defaulting rules to a single record.
func FormatRecord(timestamp string, id int, r ProcessRecord) Row {
	r = r.Normalize()

	typ := string(r.Type)
	if typ == "" {
		typ = "unknown"
	}

	return Row{
		Timestamp:   timestamp,
		ProcessID:   id,
		Type:        typ,
		Name:        displayName(r),
		CPUPercent:  round1(r.CPUPercent),
		MemoryMB:    round1(float64(r.PrivateMemoryBytes) / (1024 * 1024)),
		NetworkKBps: round1(r.NetworkKBps),
	}
}

func displayName(r ProcessRecord) string {
	name := ""
	if len(r.Tasks) > 0 {
		name = sanitize(r.Tasks[0].Title)
	}
	if name == "" {
		name = string(r.Type)
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

// sanitize keeps titles from breaking the tab/newline framing of the log.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func oneDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
