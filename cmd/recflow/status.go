package main

import (
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"recflow/internal/workflow"
)

type statusKind int

const (
	statusOK statusKind = iota
	statusWarn
	statusError
	statusInfo
)

var statusColors = map[statusKind]color.Attribute{
	statusOK:    color.FgGreen,
	statusWarn:  color.FgYellow,
	statusError: color.FgRed,
	statusInfo:  color.FgBlue,
}

// paint colors value when colorize is set. Color is forced on because the
// caller has already checked the destination writer.
func paint(value string, kind statusKind, colorize bool) string {
	if !colorize || value == "" {
		return value
	}
	c := color.New(statusColors[kind])
	c.EnableColor()
	return c.Sprint(value)
}

func runStatusKind(status workflow.Status, flagged bool) statusKind {
	switch {
	case status == workflow.StatusFailed:
		return statusError
	case flagged:
		return statusWarn
	default:
		return statusOK
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
