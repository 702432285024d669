package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactedBoundsRowsByPosition(t *testing.T) {
	log := NewRollingLog(3)
	for i := 1; i <= 5; i++ {
		log.Rows = append(log.Rows, Row{Timestamp: fixedTS, ProcessID: i, Type: "other", Name: "p"})
	}

	compacted := log.Compacted()
	require.Len(t, compacted.Rows, 3)
	assert.Equal(t, 3, compacted.Rows[0].ProcessID)
	assert.Equal(t, 5, compacted.Rows[2].ProcessID)
	assert.Len(t, log.Rows, 5, "original log is not mutated")

	assert.Equal(t, compacted.String(), compacted.Compacted().String())
}

func TestCompactedUnbounded(t *testing.T) {
	log := NewRollingLog(0)
	log.Rows = make([]Row, 50)
	assert.Len(t, log.Compacted().Rows, 50)
}

func TestParseRollingLog(t *testing.T) {
	blob := Header + "\n" +
		fixedTS + "\t1\tbrowser\tBrowser\t1.0\t100.0\t0.0\n" +
		"\n" +
		fixedTS + "\t2\tgpu\tgpu\t0.5\t20.0\t0.0"

	log, err := ParseRollingLog(blob, 12)
	require.NoError(t, err)
	require.Len(t, log.Rows, 2)
	assert.Equal(t, "Browser", log.Rows[0].Name)
	assert.Equal(t, 12, log.MaxRows)

	empty, err := ParseRollingLog("", 12)
	require.NoError(t, err)
	assert.Equal(t, Header, empty.Header)
	assert.True(t, empty.Empty())
}
