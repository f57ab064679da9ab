// Package planner implements the "ai/orchestrate" handler: it asks a
// language model to produce a plan of child tasks for an objective,
// validates the plan before it is ever allowed to reach the graph,
// and retries the model with accumulated validation feedback when the
// first attempt comes back malformed.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rparedes/taskgraph/internal/model"
)

// ModelClient generates a Plan from a prompt. Production code talks to
// an external model CLI; tests substitute a stub.
type ModelClient interface {
	GeneratePlan(ctx context.Context, prompt string, opts GenerateOptions) (model.Plan, error)
}

// GenerateOptions carries the per-call knobs an orchestrate task may
// set on its input, independent of the prompt text itself.
type GenerateOptions struct {
	// Temperature is forwarded to the model CLI only when non-zero;
	// zero means "let the CLI use its own default".
	Temperature float64
}

// SubprocessClient shells out to a model CLI binary that accepts a
// prompt on its final positional argument and a JSON schema via
// --json-schema, and prints a JSON document to stdout. Output parsing
// tries fields in order: "structured_output", "content", "result",
// falling back to scanning stdout for the outermost JSON object.
type SubprocessClient struct {
	BinaryPath string
	ExtraArgs  []string
}

// NewSubprocessClient returns a client invoking binaryPath.
func NewSubprocessClient(binaryPath string) *SubprocessClient {
	return &SubprocessClient{BinaryPath: binaryPath}
}

const planSchema = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["service", "command"],
        "properties": {
          "id": {"type": "string"},
          "service": {"type": "string"},
          "command": {"type": "string"},
          "input": {"type": "object"},
          "dependsOn": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "reasoning": {"type": "string"}
  }
}`

// GeneratePlan invokes the model CLI and parses its output into a Plan.
func (c *SubprocessClient) GeneratePlan(ctx context.Context, prompt string, opts GenerateOptions) (model.Plan, error) {
	args := append([]string{}, c.ExtraArgs...)
	if opts.Temperature != 0 {
		args = append(args, "--temperature", fmt.Sprintf("%.2f", opts.Temperature))
	}
	args = append(args, "--json-schema", planSchema, "-p", "--output-format", "json", prompt)

	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return model.Plan{}, fmt.Errorf("model invocation failed: %w: %s", err, stderr.String())
	}

	return parsePlanOutput(stdout.String())
}

// parsePlanOutput extracts a Plan from raw model CLI stdout, which may
// be a bare JSON plan document, or a CLI wrapper document carrying the
// plan under "structured_output", "content", or "result".
func parsePlanOutput(output string) (model.Plan, error) {
	raw := extractJSONObject(output)
	if raw == "" {
		return model.Plan{}, fmt.Errorf("no JSON object found in model output")
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return model.Plan{}, fmt.Errorf("model output is not a JSON object: %w", err)
	}

	if _, hasTasks := wrapper["tasks"]; hasTasks {
		var plan model.Plan
		if err := json.Unmarshal([]byte(raw), &plan); err != nil {
			return model.Plan{}, fmt.Errorf("decode plan: %w", err)
		}
		return plan, nil
	}

	for _, key := range []string{"structured_output", "content", "result"} {
		field, ok := wrapper[key]
		if !ok {
			continue
		}
		var inner string
		if err := json.Unmarshal(field, &inner); err == nil && inner != "" {
			innerRaw := extractJSONObject(inner)
			if innerRaw == "" {
				continue
			}
			var plan model.Plan
			if err := json.Unmarshal([]byte(innerRaw), &plan); err == nil {
				return plan, nil
			}
			continue
		}
		var plan model.Plan
		if err := json.Unmarshal(field, &plan); err == nil {
			return plan, nil
		}
	}

	return model.Plan{}, fmt.Errorf("model output did not contain a recognizable plan")
}

// extractJSONObject returns the outermost {...} span of s, or "" if
// s contains no balanced braces.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// WithTimeout wraps client so every GeneratePlan call is bounded by d.
func WithTimeout(client ModelClient, d time.Duration) ModelClient {
	return timeoutClient{client: client, timeout: d}
}

type timeoutClient struct {
	client  ModelClient
	timeout time.Duration
}

func (t timeoutClient) GeneratePlan(ctx context.Context, prompt string, opts GenerateOptions) (model.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.client.GeneratePlan(ctx, prompt, opts)
}
