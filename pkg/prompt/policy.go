package prompt

import (
	"sort"

	"procsight/pkg/telemetry"
)

type Mode string

const (
	ModeFull     Mode = "full"
	ModeTopByCPU Mode = "top-n-by-cpu"
)

// FilterPolicy selects which rows of the rolling log reach the prompt.
type FilterPolicy struct {
	Mode      Mode
	TopN      int
	Threshold float64
}

func Full() FilterPolicy {
	return FilterPolicy{Mode: ModeFull}
}

// TopByCPU keeps rows with cpu above threshold, busiest first, at most n of them.
// n <= 0 means no cap.
func TopByCPU(n int, threshold float64) FilterPolicy {
	return FilterPolicy{Mode: ModeTopByCPU, TopN: n, Threshold: threshold}
}

// ParsePolicy maps a configured mode name to a policy. Unknown names select Full.
func ParsePolicy(mode string, n int, threshold float64) FilterPolicy {
	if Mode(mode) == ModeTopByCPU {
		return TopByCPU(n, threshold)
	}
	return Full()
}

func (p FilterPolicy) Apply(rows []telemetry.Row) []telemetry.Row {
	if p.Mode != ModeTopByCPU {
		return append([]telemetry.Row(nil), rows...)
	}

	kept := make([]telemetry.Row, 0, len(rows))
	for _, r := range rows {
		if r.CPUPercent > p.Threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CPUPercent > kept[j].CPUPercent
	})
	if p.TopN > 0 && len(kept) > p.TopN {
		kept = kept[:p.TopN]
	}
	return kept
}
