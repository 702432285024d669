package main

import (
	"fmt"
	"io"
	"strings"

	"procsight/pkg/telemetry"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	hotColor    = color.New(color.FgRed)
	warmColor   = color.New(color.FgYellow)
	replyColor  = color.New(color.FgGreen, color.Bold)
	noticeColor = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
)

// printLog writes the rolling log as a table, highlighting busy processes.
func printLog(w io.Writer, log telemetry.RollingLog) {
	header := log.Header
	if header == "" {
		header = telemetry.Header
	}
	headerColor.Fprintln(w, header)

	if log.Empty() {
		dimColor.Fprintln(w, "(no processes)")
		return
	}
	for _, r := range log.Rows {
		line := r.String()
		switch {
		case r.CPUPercent >= 50:
			hotColor.Fprintln(w, line)
		case r.CPUPercent >= 10:
			warmColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func printRule(w io.Writer, title string) {
	dimColor.Fprintf(w, "── %s %s\n", title, strings.Repeat("─", max(0, 60-len(title))))
}
