// Package report renders a completed job's result as a Markdown
// summary, and optionally as HTML for attaching to a ticket or chat
// message.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/rparedes/taskgraph/internal/model"
)

// Markdown renders result as a Markdown document: a heading with the
// job's overall status and duration, followed by a table of every
// task's final status, and a section listing failures in detail.
func Markdown(result model.JobResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Job %s — %s\n\n", result.ID, result.Status)
	if result.Name != "" {
		fmt.Fprintf(&b, "**Name:** %s\n\n", result.Name)
	}
	duration := result.CompletedAt.Sub(result.StartedAt)
	fmt.Fprintf(&b, "**Started:** %s  \n**Completed:** %s  \n**Duration:** %s\n\n",
		result.StartedAt.Format(time.RFC3339), result.CompletedAt.Format(time.RFC3339), duration)

	counts := tallyStatuses(result.Tasks)
	b.WriteString("## Summary\n\n")
	b.WriteString("| Status | Count |\n|---|---|\n")
	for _, status := range []model.Status{
		model.StatusSucceeded, model.StatusFailed, model.StatusAborted, model.StatusPlanned, model.StatusPending,
	} {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", status, n)
		}
	}
	b.WriteString("\n## Tasks\n\n")
	b.WriteString("| ID | Service/Command | Status | Depends On |\n|---|---|---|---|\n")

	tasks := append([]model.TaskSnapshot(nil), result.Tasks...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	for _, t := range tasks {
		fmt.Fprintf(&b, "| %s | %s/%s | %s | %s |\n", t.ID, t.Service, t.Command, t.Status, strings.Join(t.DependsOn, ", "))
	}

	if failures := failedTasks(tasks); len(failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, t := range failures {
			fmt.Fprintf(&b, "### %s\n\n", t.ID)
			if msg, ok := t.Output["error"]; ok {
				fmt.Fprintf(&b, "```\n%v\n```\n\n", msg)
			}
		}
	}

	return b.String()
}

// HTML renders result's Markdown summary as HTML.
func HTML(result model.JobResult) (string, error) {
	var buf bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := md.Convert([]byte(Markdown(result)), &buf); err != nil {
		return "", fmt.Errorf("render report as html: %w", err)
	}
	return buf.String(), nil
}

func tallyStatuses(tasks []model.TaskSnapshot) map[model.Status]int {
	counts := make(map[model.Status]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts
}

func failedTasks(tasks []model.TaskSnapshot) []model.TaskSnapshot {
	var out []model.TaskSnapshot
	for _, t := range tasks {
		if t.Status == model.StatusFailed {
			out = append(out, t)
		}
	}
	return out
}
