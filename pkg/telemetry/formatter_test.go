package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

const fixedTS = "2024-01-02T03:04:05.000Z"

func TestFormatExampleTab(t *testing.T) {
	snap := Snapshot{
		101: {
			CPUPercent:         12.34,
			PrivateMemoryBytes: 52428800,
			NetworkKBps:        3.2,
			Type:               ProcessTypeRenderer,
			Tasks:              []Task{{Title: "Example Tab"}},
			OSProcessID:        5001,
		},
	}

	rows := NewFormatter(fixedNow).Format(snap)
	require.Len(t, rows, 1)
	assert.Equal(t, fixedTS+"\t101\trenderer\tExample Tab\t12.3\t50.0\t3.2", rows[0].String())
}

func TestFormatRecordDefaults(t *testing.T) {
	tests := []struct {
		name    string
		record  ProcessRecord
		wantRow string
	}{
		{
			name:    "memory conversion",
			record:  ProcessRecord{PrivateMemoryBytes: 10485760, Type: ProcessTypeGPU},
			wantRow: fixedTS + "\t7\tgpu\tgpu\t0.0\t10.0\t0.0",
		},
		{
			name:    "missing everything",
			record:  ProcessRecord{},
			wantRow: fixedTS + "\t7\tunknown\tunnamed\t0.0\t0.0\t0.0",
		},
		{
			name:    "empty first task falls back to type",
			record:  ProcessRecord{Type: ProcessTypeUtility, Tasks: []Task{{Title: ""}, {Title: "second"}}},
			wantRow: fixedTS + "\t7\tutility\tutility\t0.0\t0.0\t0.0",
		},
		{
			name:    "negative values clamp to zero",
			record:  ProcessRecord{CPUPercent: -4, NetworkKBps: -1, PrivateMemoryBytes: -10, Type: ProcessTypeWorker},
			wantRow: fixedTS + "\t7\tworker\tworker\t0.0\t0.0\t0.0",
		},
		{
			name:    "unknown type folds to other",
			record:  ProcessRecord{Type: "spare_renderer"},
			wantRow: fixedTS + "\t7\tother\tother\t0.0\t0.0\t0.0",
		},
		{
			name:    "tabs in titles are replaced",
			record:  ProcessRecord{Type: ProcessTypeRenderer, Tasks: []Task{{Title: "a\tb\nc"}}},
			wantRow: fixedTS + "\t7\trenderer\ta b c\t0.0\t0.0\t0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRow, FormatRecord(fixedTS, 7, tt.record).String())
		})
	}
}

func TestFormatOrdersByProcessID(t *testing.T) {
	snap := Snapshot{}
	for _, id := range []int{42, 3, 17, 100, 1} {
		snap[id] = ProcessRecord{Type: ProcessTypeOther}
	}

	rows := NewFormatter(fixedNow).Format(snap)
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProcessID)
	}
	assert.Equal(t, []int{1, 3, 17, 42, 100}, ids)
}

func TestDecodeSnapshotDefaultsMissingFields(t *testing.T) {
	data := []byte(`{
		"101": {"privateMemoryBytes": 10485760, "type": "renderer", "tasks": [{"title": "Docs"}], "osProcessId": 9},
		"7":   {"cpuPercent": null, "tasks": [{}]}
	}`)

	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Len(t, snap, 2)

	rows := NewFormatter(fixedNow).Format(snap)
	assert.Equal(t, fixedTS+"\t7\tunknown\tunnamed\t0.0\t0.0\t0.0", rows[0].String())
	assert.Equal(t, fixedTS+"\t101\trenderer\tDocs\t0.0\t10.0\t0.0", rows[1].String())
	assert.Equal(t, 9, snap[101].OSProcessID)
}

func TestDecodeSnapshotRejectsBadIDs(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"abc": {}}`))
	assert.Error(t, err)

	_, err = DecodeSnapshot([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeDecodeKeepsRecords(t *testing.T) {
	snap := Snapshot{5: {CPUPercent: 1.5, Type: ProcessTypeBrowser, Tasks: []Task{{Title: "Browser"}}, OSProcessID: 5}}

	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestParseRow(t *testing.T) {
	row, err := ParseRow(fixedTS + "\t101\trenderer\tExample Tab\t12.3\t50.0\t3.2")
	require.NoError(t, err)
	assert.Equal(t, 101, row.ProcessID)
	assert.Equal(t, "Example Tab", row.Name)
	assert.InDelta(t, 12.3, row.CPUPercent, 1e-9)

	_, err = ParseRow("too\tfew")
	assert.Error(t, err)
	_, err = ParseRow(fixedTS + "\tx\trenderer\tn\t1\t2\t3")
	assert.Error(t, err)
}
