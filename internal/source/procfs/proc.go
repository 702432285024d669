package procfs

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type procStat struct {
	comm     string
	procTime uint64 // utime + stime, in clock ticks
	rssPages int64
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// readProcStat parses /proc/<pid>/stat. comm may contain spaces and
// parentheses, so fields are split after the last ')'.
func readProcStat(root string, pid int) (procStat, bool) {
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStat{}, false
	}

	line := strings.TrimSpace(string(data))
	l := strings.IndexByte(line, '(')
	r := strings.LastIndexByte(line, ')')
	if l < 0 || r < 0 || r <= l {
		return procStat{}, false
	}

	fields := strings.Fields(line[r+1:])
	if len(fields) < 22 {
		return procStat{}, false
	}

	// fields[0] is stat field 3 (state)
	field := func(i int) string { return fields[i-3] }

	utime, _ := strconv.ParseUint(field(14), 10, 64)
	stime, _ := strconv.ParseUint(field(15), 10, 64)
	rss, _ := strconv.ParseInt(field(24), 10, 64)

	return procStat{
		comm:     line[l+1 : r],
		procTime: utime + stime,
		rssPages: rss,
	}, true
}

func readCmdline(root string, pid int) string {
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "cmdline"))
	if err != nil || len(data) == 0 {
		return ""
	}
	for i := range data {
		if data[i] == 0 {
			data[i] = ' '
		}
	}
	return strings.TrimSpace(string(data))
}

// readTotalCPUTime sums the aggregate cpu line of /proc/stat.
func readTotalCPUTime(root string) uint64 {
	f, err := os.Open(filepath.Join(root, "stat"))
	if err != nil {
		return 0
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return 0
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "cpu" {
		return 0
	}

	var total uint64
	for _, tok := range fields[1:] {
		if v, err := strconv.ParseUint(tok, 10, 64); err == nil {
			total += v
		}
	}
	return total
}
