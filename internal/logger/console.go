// Package logger provides the orchestrator's console logging
// implementation: timestamped, level-filtered, optionally colored
// output reporting task starts, completions, status cascades,
// spawns, and deadlocks.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/rparedes/taskgraph/internal/model"
)

const (
	levelDebug int = 0
	levelInfo  int = 1
	levelWarn  int = 2
	levelError int = 3
)

// ConsoleLogger writes orchestrator progress to a writer with
// "[HH:MM:SS]" timestamps. It implements orchestrator.Logger.
// Safe for concurrent use: every write is serialized behind mutex,
// since task handlers execute in their own goroutines.
type ConsoleLogger struct {
	writer      io.Writer
	level       string
	colorOutput bool
	mutex       sync.Mutex
}

// fdWriter identifies the writers that should be checked for a
// TTY when deciding whether to color output.
type fdWriter interface {
	Fd() uintptr
}

// New returns a ConsoleLogger writing to w at the given minimum log
// level (debug, info, warn, error — case-insensitive; anything else
// defaults to info). Color is enabled automatically when w is a TTY.
func New(w io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      w,
		level:       normalizeLevel(level),
		colorOutput: isTerminal(w),
	}
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "error":
		return strings.ToLower(strings.TrimSpace(level))
	default:
		return "info"
	}
}

func levelToInt(level string) int {
	switch level {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func isTerminal(w io.Writer) bool {
	fw, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return isatty.IsTerminal(fw.Fd())
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

func (c *ConsoleLogger) shouldLog(level string) bool {
	return levelToInt(level) >= levelToInt(c.level)
}

func (c *ConsoleLogger) write(level, message string) {
	if c.writer == nil || !c.shouldLog(level) {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	ts := timestamp()
	tag := strings.ToUpper(level)
	if c.colorOutput {
		tag = colorizeLevel(level, tag)
	}
	fmt.Fprintf(c.writer, "[%s] [%s] %s\n", ts, tag, message)
}

func colorizeLevel(level, tag string) string {
	switch level {
	case "debug":
		return color.New(color.FgCyan).Sprint(tag)
	case "info":
		return color.New(color.FgBlue).Sprint(tag)
	case "warn":
		return color.New(color.FgYellow).Sprint(tag)
	case "error":
		return color.New(color.FgRed).Sprint(tag)
	default:
		return tag
	}
}

// Debugf logs a formatted debug-level message.
func (c *ConsoleLogger) Debugf(format string, args ...interface{}) {
	c.write("debug", fmt.Sprintf(format, args...))
}

// Infof logs a formatted info-level message.
func (c *ConsoleLogger) Infof(format string, args ...interface{}) {
	c.write("info", fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warn-level message.
func (c *ConsoleLogger) Warnf(format string, args ...interface{}) {
	c.write("warn", fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error-level message.
func (c *ConsoleLogger) Errorf(format string, args ...interface{}) {
	c.write("error", fmt.Sprintf(format, args...))
}

// LogTaskStart reports a task entering the Started state.
func (c *ConsoleLogger) LogTaskStart(snap model.TaskSnapshot) {
	c.write("info", fmt.Sprintf("%s started  %s/%s", taskLabel(snap), snap.Service, snap.Command))
}

// LogTaskComplete reports a task reaching a terminal status.
func (c *ConsoleLogger) LogTaskComplete(snap model.TaskSnapshot) {
	level := "info"
	icon := statusIcon(snap.Status)
	if snap.Status == model.StatusFailed {
		level = "error"
	}
	c.write(level, fmt.Sprintf("%s %s %s/%s", taskLabel(snap), icon, snap.Service, snap.Command))
}

// LogCascade reports a Pending task's status changing due to
// propagation from a predecessor, rather than from running its own
// handler.
func (c *ConsoleLogger) LogCascade(taskID string, from, to model.Status) {
	c.write("warn", fmt.Sprintf("task %s cascaded %s -> %s", taskID, from, to))
}

// LogSpawn reports a handler requesting new child tasks.
func (c *ConsoleLogger) LogSpawn(parentID string, childIDs []string) {
	c.write("info", fmt.Sprintf("task %s spawned %d child task(s): %s", parentID, len(childIDs), strings.Join(childIDs, ", ")))
}

// LogDeadlock reports the orchestrator finding no executable task
// while Pending tasks remain. A deadlock always ends the job, so it
// is drawn in a boxed banner rather than a single log line — the one
// event in this logger severe enough to warrant it.
func (c *ConsoleLogger) LogDeadlock(stuckIDs []string) {
	if c.writer == nil || !c.shouldLog("error") {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	width := terminalWidth()
	header := fmt.Sprintf("DEADLOCK: %d task(s) stuck", len(stuckIDs))
	if c.colorOutput {
		header = color.New(color.FgRed, color.Bold).Sprint(header)
	}

	fmt.Fprintln(c.writer, boxLine("", width, true))
	fmt.Fprintln(c.writer, boxLine(header, width, false))
	fmt.Fprintln(c.writer, boxLine("", width, true))
	for _, id := range stuckIDs {
		fmt.Fprintln(c.writer, boxLine("  "+id, width, false))
	}
	fmt.Fprintln(c.writer, boxLine("", width, true))
}

// terminalWidth returns the current terminal width, clamped to a
// readable range, falling back to 80 columns when stdout isn't a
// real terminal or the size can't be determined.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 60 {
		return 80
	}
	if width > 120 {
		return 120
	}
	return width
}

// boxLine renders one line of a plain ASCII box. border draws a full
// "+---+" rule instead of padding content.
func boxLine(content string, width int, border bool) string {
	if border {
		return "+" + strings.Repeat("-", width-2) + "+"
	}
	padding := width - 4 - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
		content = runewidth.Truncate(content, width-4, "...")
	}
	return "| " + content + strings.Repeat(" ", padding) + " |"
}

func taskLabel(snap model.TaskSnapshot) string {
	return fmt.Sprintf("task %s", snap.ID)
}

func statusIcon(status model.Status) string {
	switch status {
	case model.StatusSucceeded:
		return "OK"
	case model.StatusFailed:
		return "FAILED"
	case model.StatusAborted:
		return "ABORTED"
	default:
		return string(status)
	}
}
