// Package telemetry turns process snapshots into the bounded, tab-separated
// rolling log that feeds subscribers and prompts.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type ProcessType string

const (
	ProcessTypeBrowser       ProcessType = "browser"
	ProcessTypeRenderer      ProcessType = "renderer"
	ProcessTypeGPU           ProcessType = "gpu"
	ProcessTypeExtension     ProcessType = "extension"
	ProcessTypePlugin        ProcessType = "plugin"
	ProcessTypeWorker        ProcessType = "worker"
	ProcessTypeServiceWorker ProcessType = "service_worker"
	ProcessTypeUtility       ProcessType = "utility"
	ProcessTypeNotification  ProcessType = "notification"
	ProcessTypeOther         ProcessType = "other"
)

var knownTypes = map[ProcessType]bool{
	ProcessTypeBrowser:       true,
	ProcessTypeRenderer:      true,
	ProcessTypeGPU:           true,
	ProcessTypeExtension:     true,
	ProcessTypePlugin:        true,
	ProcessTypeWorker:        true,
	ProcessTypeServiceWorker: true,
	ProcessTypeUtility:       true,
	ProcessTypeNotification:  true,
	ProcessTypeOther:         true,
}

// ParseProcessType maps unknown non-empty values to ProcessTypeOther.
// An empty value stays empty so formatting can fall back to "unknown".
func ParseProcessType(s string) ProcessType {
	t := ProcessType(s)
	if s == "" || knownTypes[t] {
		return t
	}
	return ProcessTypeOther
}

type Task struct {
	Title string `json:"title"`
}

type ProcessRecord struct {
	CPUPercent         float64     `json:"cpuPercent"`
	PrivateMemoryBytes int64       `json:"privateMemoryBytes"`
	NetworkKBps        float64     `json:"networkKBps"`
	Type               ProcessType `json:"type"`
	Tasks              []Task      `json:"tasks"`
	OSProcessID        int         `json:"osProcessId"`
}

// Normalize clamps negative or non-finite numbers to zero and folds unknown types.
func (r ProcessRecord) Normalize() ProcessRecord {
	r.CPUPercent = nonNegative(r.CPUPercent)
	r.NetworkKBps = nonNegative(r.NetworkKBps)
	if r.PrivateMemoryBytes < 0 {
		r.PrivateMemoryBytes = 0
	}
	r.Type = ParseProcessType(string(r.Type))
	return r
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Snapshot maps process identifiers to their records.
type Snapshot map[int]ProcessRecord

// IDs returns the process identifiers in ascending order.
func (s Snapshot) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, r := range s {
		r.Tasks = append([]Task(nil), r.Tasks...)
		out[id] = r
	}
	return out
}

type rawTask struct {
	Title *string `json:"title"`
}

type rawRecord struct {
	CPUPercent         *float64  `json:"cpuPercent"`
	PrivateMemoryBytes *float64  `json:"privateMemoryBytes"`
	NetworkKBps        *float64  `json:"networkKBps"`
	Type               *string   `json:"type"`
	Tasks              []rawTask `json:"tasks"`
	OSProcessID        *int      `json:"osProcessId"`
}

func (raw rawRecord) record() ProcessRecord {
	var r ProcessRecord
	if raw.CPUPercent != nil {
		r.CPUPercent = *raw.CPUPercent
	}
	if raw.PrivateMemoryBytes != nil {
		r.PrivateMemoryBytes = int64(nonNegative(*raw.PrivateMemoryBytes))
	}
	if raw.NetworkKBps != nil {
		r.NetworkKBps = *raw.NetworkKBps
	}
	if raw.Type != nil {
		r.Type = ProcessType(*raw.Type)
	}
	if raw.OSProcessID != nil {
		r.OSProcessID = *raw.OSProcessID
	}
	for _, t := range raw.Tasks {
		title := ""
		if t.Title != nil {
			title = *t.Title
		}
		r.Tasks = append(r.Tasks, Task{Title: title})
	}
	return r.Normalize()
}

// DecodeSnapshot parses a JSON snapshot keyed by process identifier.
// Missing or null fields default to zero values; records are never dropped.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var raw map[string]rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := make(Snapshot, len(raw))
	for key, rec := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: invalid process id %q", key)
		}
		snap[id] = rec.record()
	}
	return snap, nil
}

// EncodeSnapshot is the inverse of DecodeSnapshot.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}
