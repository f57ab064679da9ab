package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rparedes/taskgraph/internal/model"
	"github.com/rparedes/taskgraph/internal/registry"
	"github.com/rparedes/taskgraph/internal/validate"
)

// defaultMaxRetries bounds how many times the model gets to correct a
// plan that failed validation before the orchestrate task itself
// fails.
const defaultMaxRetries = 3

// defaultTemperature is the model sampling temperature used when an
// orchestrate task's input does not set one.
const defaultTemperature = 0.2

// defaultMaxChildTasks bounds how many tasks a single plan may spawn
// before the orchestrate task is rejected outright, independent of
// the job-wide maxTasks ceiling.
const defaultMaxChildTasks = 100

// defaultTimeoutMillis bounds a single model call when an orchestrate
// task's input does not set its own timeout.
const defaultTimeoutMillis = 60000

// defaultMaxDepth bounds how deep an orchestrate task may spawn
// further orchestrate tasks when its input does not set its own.
const defaultMaxDepth = 10

// maxAccumulatedErrors is how many prior validation errors are quoted
// verbatim in a retry prompt; beyond this a summary count is appended
// instead, keeping the prompt from growing unbounded across retries.
const maxAccumulatedErrors = 5

// Planner produces the "ai/orchestrate" handler definition: given a
// prompt, it asks a ModelClient for a plan, validates it against the
// same registry and validator the orchestrator itself uses, and
// retries with the model's own mistakes fed back to it.
type Planner struct {
	Client     ModelClient
	Registry   *registry.Registry
	Validator  *validate.Validator
	MaxRetries int
}

// New returns a Planner with defaultMaxRetries.
func New(client ModelClient, reg *registry.Registry) *Planner {
	return &Planner{
		Client:     client,
		Registry:   reg,
		Validator:  validate.New(reg),
		MaxRetries: defaultMaxRetries,
	}
}

// Definition returns the registry.Definition for "ai/orchestrate",
// ready to hand to Registry.Register.
func (p *Planner) Definition() registry.Definition {
	return registry.Definition{
		Service:         "ai",
		Command:         "orchestrate",
		Description:     "ask a language model to plan and spawn the child tasks that accomplish a prompt",
		RequiredParams:  []string{"prompt"},
		OptionalParams:  []string{"dryRun", "maxRetries", "temperature", "context", "maxChildTasks", "timeout", "maxDepth", "verbose"},
		AllowInPlanMode: true,
		Handler:         p.Handle,
	}
}

// jobContextNodes adapts registry.JobContext to validate.ExistingNodes
// so a spawned plan's dependsOn can be resolved against sibling tasks
// already present elsewhere in the live job, not just this batch.
type jobContextNodes struct {
	jc registry.JobContext
}

func (n jobContextNodes) HasNode(id string) bool {
	_, ok := n.jc.GetTaskStatus(id)
	return ok
}

// intInput reads an integer-valued input key, accepting both the
// float64 a JSON/YAML decoder produces and a plain int, and falling
// back when the key is absent or of the wrong type.
func intInput(input map[string]interface{}, key string, fallback int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// floatInput reads a numeric input key the same way intInput does,
// without truncating to an integer.
func floatInput(input map[string]interface{}, key string, fallback float64) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// Handle is the ai/orchestrate handler function.
func (p *Planner) Handle(ctx context.Context, task model.Task, jc registry.JobContext) (model.HandlerResult, error) {
	prompt, _ := task.Input["prompt"].(string)
	if prompt == "" {
		return model.HandlerResult{}, fmt.Errorf("ai/orchestrate: input.prompt is required")
	}

	dryRun := true
	if v, ok := task.Input["dryRun"].(bool); ok {
		dryRun = v
	}
	verbose, _ := task.Input["verbose"].(bool)
	userContext, _ := task.Input["context"].(string)

	maxDepth := intInput(task.Input, "maxDepth", defaultMaxDepth)
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if task.Depth >= maxDepth {
		return model.HandlerResult{}, fmt.Errorf("ai/orchestrate: Cannot orchestrate at depth %d. Maximum depth is %d", task.Depth, maxDepth)
	}

	maxRetries := intInput(task.Input, "maxRetries", p.MaxRetries)
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	temperature := floatInput(task.Input, "temperature", defaultTemperature)
	maxChildTasks := intInput(task.Input, "maxChildTasks", defaultMaxChildTasks)
	if maxChildTasks <= 0 {
		maxChildTasks = defaultMaxChildTasks
	}
	timeoutMillis := intInput(task.Input, "timeout", defaultTimeoutMillis)
	if timeoutMillis <= 0 {
		timeoutMillis = defaultTimeoutMillis
	}

	client := p.Client
	if timeoutMillis > 0 {
		client = WithTimeout(client, time.Duration(timeoutMillis)*time.Millisecond)
	}

	var lastReport model.ValidationReport
	var accumulated []string
	var plan model.Plan
	var children []model.ChildTaskSpec
	var retriesUsed int
	var prompts []string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		builtPrompt := p.buildPrompt(task, prompt, userContext, jc, accumulated)
		if verbose {
			prompts = append(prompts, builtPrompt)
		}

		generated, err := client.GeneratePlan(ctx, builtPrompt, GenerateOptions{Temperature: temperature})
		if err != nil {
			return model.HandlerResult{}, fmt.Errorf("ai/orchestrate: generate plan: %w", err)
		}
		plan = generated

		report, normalized := p.Validator.Validate(task.ID, plan.Tasks, jobContextNodes{jc: jc})
		lastReport = report
		if report.IsValid {
			if len(plan.Tasks) > maxChildTasks {
				return model.HandlerResult{}, fmt.Errorf("ai/orchestrate: plan has %d child task(s), exceeding maxChildTasks limit of %d", len(plan.Tasks), maxChildTasks)
			}
			children = normalized
			break
		}

		retriesUsed = attempt + 1
		accumulated = append(accumulated, report.Errors...)
		if attempt == maxRetries {
			return model.HandlerResult{}, fmt.Errorf("ai/orchestrate: plan invalid after %d attempt(s): %s", retriesUsed, report.String())
		}
	}

	output := map[string]interface{}{
		"prompt":           prompt,
		"plan":             plan,
		"reasoning":        plan.Reasoning,
		"dryRun":           dryRun,
		"retriesUsed":      retriesUsed,
		"validationReport": lastReport,
	}

	audit := map[string]interface{}{"validationReport": lastReport}
	if verbose {
		audit["prompts"] = prompts
	}
	result := model.HandlerResult{
		Output: output,
		Audit:  audit,
	}

	if dryRun {
		output["plannedTasks"] = children
	} else {
		output["childTasks"] = children
		result.ChildTasks = children
	}

	return result, nil
}

// buildPrompt assembles the model prompt: the catalog of services and
// commands it may use, the user's prompt text, optional free-form
// context, (on retry) the validation errors accumulated over all
// earlier attempts (the first maxAccumulatedErrors quoted, the rest
// counted), and the outputs of every task this orchestrate task
// depends on.
func (p *Planner) buildPrompt(task model.Task, prompt, userContext string, jc registry.JobContext, accumulated []string) string {
	var sb strings.Builder

	sb.WriteString("Available services and commands:\n")
	for _, entry := range p.Registry.Catalog() {
		sb.WriteString(fmt.Sprintf("- %s/%s: %s\n", entry.Service, entry.Command, entry.Description))
	}
	sb.WriteString("\n")

	sb.WriteString("Objective: ")
	sb.WriteString(prompt)
	sb.WriteString("\n\n")

	if userContext != "" {
		sb.WriteString("Context: ")
		sb.WriteString(userContext)
		sb.WriteString("\n\n")
	}

	if len(accumulated) > 0 {
		sb.WriteString("The previous plan failed validation. Fix these errors:\n")
		shown := accumulated
		var tail string
		if len(shown) > maxAccumulatedErrors {
			tail = fmt.Sprintf("\n...and %d more error(s) omitted.\n", len(shown)-maxAccumulatedErrors)
			shown = shown[:maxAccumulatedErrors]
		}
		for _, e := range shown {
			sb.WriteString("- ")
			sb.WriteString(e)
			sb.WriteString("\n")
		}
		sb.WriteString(tail)
		sb.WriteString("\n")
	}

	if len(task.DependsOn) > 0 {
		sb.WriteString("Dependency Task Results:\n")
		for _, depID := range task.DependsOn {
			output, ok := jc.GetTaskOutput(depID)
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("- %s: %v\n", depID, output))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Respond with a JSON plan: {\"tasks\":[{\"id\":\"...\",\"service\":\"...\",\"command\":\"...\",\"input\":{},\"dependsOn\":[]}],\"reasoning\":\"...\"}\nEvery id you assign will be namespaced under %q.\n", task.ID))

	return sb.String()
}
