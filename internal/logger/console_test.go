package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rparedes/taskgraph/internal/model"
)

func TestConsoleLogger_LevelFilteringSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")

	l.Infof("should not appear")
	l.Warnf("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestConsoleLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "verbose-nonsense")

	l.Infof("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestConsoleLogger_LogTaskStartAndCompleteIncludeTaskID(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")

	snap := model.TaskSnapshot{ID: "job-1", Service: "docs", Command: "write", Status: model.StatusSucceeded}
	l.LogTaskStart(snap)
	l.LogTaskComplete(snap)

	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "docs/write")
	assert.True(t, strings.Count(out, "job-1") >= 2)
}

func TestConsoleLogger_LogTaskCompleteFailedTaskLogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "error")

	l.LogTaskComplete(model.TaskSnapshot{ID: "t1", Status: model.StatusFailed})
	assert.Contains(t, buf.String(), "t1")

	buf.Reset()
	l.LogTaskStart(model.TaskSnapshot{ID: "t2"})
	assert.Empty(t, buf.String(), "info-level start should be suppressed at error threshold")
}

func TestConsoleLogger_LogCascadeAndSpawnAndDeadlock(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")

	l.LogCascade("b", model.StatusPending, model.StatusAborted)
	l.LogSpawn("root", []string{"root-step-1", "root-step-2"})
	l.LogDeadlock([]string{"x", "y"})

	out := buf.String()
	assert.Contains(t, out, "cascaded Pending -> Aborted")
	assert.Contains(t, out, "root-step-1, root-step-2")
	assert.Contains(t, out, "DEADLOCK: 2 task(s)")
	assert.Contains(t, out, "x")
	assert.Contains(t, out, "y")
}

func TestConsoleLogger_LogDeadlockDrawsBoxedBanner(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "error")

	l.LogDeadlock([]string{"stuck-a", "stuck-b"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.True(t, len(lines) >= 5)
	assert.True(t, strings.HasPrefix(lines[0], "+"))
	assert.True(t, strings.HasSuffix(lines[0], "+"))
	assert.Contains(t, buf.String(), "stuck-a")
	assert.Contains(t, buf.String(), "stuck-b")
}

func TestConsoleLogger_NilWriterIsSafeNoOp(t *testing.T) {
	l := New(nil, "debug")
	assert.NotPanics(t, func() {
		l.Infof("discarded")
		l.LogTaskStart(model.TaskSnapshot{ID: "x"})
	})
}
