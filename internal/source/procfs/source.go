// Package procfs is the host snapshot source backed by the Linux /proc filesystem.
package procfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/telemetry"
)

const maxTitleRunes = 80

var _ telemetry.Source = &Source{}

// Source scans /proc. CPU percent is the share of total machine CPU time
// since the previous scan, so the first scan reports zero for every process.
// Per-process network throughput is not available from /proc and is reported as zero.
type Source struct {
	root     string
	interval time.Duration
	selfPID  int
	pageSize int64

	mu        sync.Mutex
	prevProc  map[int]uint64
	prevTotal uint64

	logger logger.ILogger
}

func New(root string, interval time.Duration, log logger.ILogger) *Source {
	if root == "" {
		root = "/proc"
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Source{
		root:     root,
		interval: interval,
		selfPID:  os.Getpid(),
		pageSize: int64(os.Getpagesize()),
		prevProc: make(map[int]uint64),
		logger:   log,
	}
}

func (s *Source) GetSnapshot(ctx context.Context) (telemetry.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.scan()
}

func (s *Source) scan() (telemetry.Snapshot, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.root, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	curTotal := readTotalCPUTime(s.root)
	sysDelta := uint64(1)
	if curTotal > s.prevTotal {
		sysDelta = curTotal - s.prevTotal
	}
	firstScan := s.prevTotal == 0

	snap := make(telemetry.Snapshot)
	cur := make(map[int]uint64)
	for _, ent := range entries {
		if !ent.IsDir() || !isNumeric(ent.Name()) {
			continue
		}
		pid, _ := strconv.Atoi(ent.Name())

		st, ok := readProcStat(s.root, pid)
		if !ok {
			continue
		}
		cur[pid] = st.procTime

		cpu := 0.0
		if prev, seen := s.prevProc[pid]; seen && !firstScan && st.procTime > prev {
			cpu = float64(st.procTime-prev) * 100.0 / float64(sysDelta)
		}

		title := readCmdline(s.root, pid)
		if title == "" {
			title = st.comm
		}
		if r := []rune(title); len(r) > maxTitleRunes {
			title = string(r[:maxTitleRunes])
		}

		typ := telemetry.ProcessTypeOther
		if pid == s.selfPID {
			typ = telemetry.ProcessTypeBrowser
		}

		snap[pid] = telemetry.ProcessRecord{
			CPUPercent:         cpu,
			PrivateMemoryBytes: st.rssPages * s.pageSize,
			Type:               typ,
			Tasks:              []telemetry.Task{{Title: title}},
			OSProcessID:        pid,
		}.Normalize()
	}

	s.prevProc = cur
	s.prevTotal = curTotal
	return snap, nil
}

// Listen scans every interval, reporting vanished pids through OnExit
// before the OnUpdate carrying the new snapshot. It returns when ctx ends.
func (s *Source) Listen(ctx context.Context, l telemetry.Listener) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var known map[int]struct{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := s.scan()
			if err != nil {
				s.logger.Warn("Procfs", "Scan failed", map[string]interface{}{"error": err.Error()})
				continue
			}

			for pid := range known {
				if _, alive := snap[pid]; !alive {
					l.OnExit(pid)
				}
			}
			known = make(map[int]struct{}, len(snap))
			for pid := range snap {
				known[pid] = struct{}{}
			}
			l.OnUpdate(snap)
		}
	}
}

// Terminate sends SIGTERM. It reports false without error when the process is already gone.
func (s *Source) Terminate(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}
	if pid == s.selfPID {
		return false, fmt.Errorf("refusing to terminate own process %d", pid)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return false, nil
		}
		return false, fmt.Errorf("failed to send SIGTERM to PID %d: %w", pid, err)
	}

	s.logger.Info("Procfs", "Sent SIGTERM", map[string]interface{}{"pid": pid})
	return true, nil
}
