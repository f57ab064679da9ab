package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rparedes/taskgraph/internal/model"
	"github.com/rparedes/taskgraph/internal/registry"
)

type stubClient struct {
	plans   []model.Plan
	errs    []error
	calls   int
	lastOpt GenerateOptions
}

func (s *stubClient) GeneratePlan(ctx context.Context, prompt string, opts GenerateOptions) (model.Plan, error) {
	i := s.calls
	s.calls++
	s.lastOpt = opts
	if i < len(s.errs) && s.errs[i] != nil {
		return model.Plan{}, s.errs[i]
	}
	if i >= len(s.plans) {
		return s.plans[len(s.plans)-1], nil
	}
	return s.plans[i], nil
}

func noop(ctx context.Context, task model.Task, jc registry.JobContext) (model.HandlerResult, error) {
	return model.HandlerResult{}, nil
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Register(registry.Definition{Service: "docs", Command: "write", RequiredParams: []string{"path"}, Handler: noop}))
	return r
}

type fakeJobContext struct {
	outputs map[string]map[string]interface{}
}

func (f fakeJobContext) GetTask(id string) (model.TaskSnapshot, bool) { return model.TaskSnapshot{}, false }
func (f fakeJobContext) GetTaskOutput(id string) (map[string]interface{}, bool) {
	o, ok := f.outputs[id]
	return o, ok
}
func (f fakeJobContext) GetTaskStatus(id string) (model.Status, bool) { return "", false }
func (f fakeJobContext) Verbose() bool                                { return false }

func TestHandle_ValidPlanOnFirstAttemptDryRunDefault(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{
			{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}},
		},
		Reasoning: "need one file",
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file"}}
	result, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.NoError(t, err)
	assert.Empty(t, result.ChildTasks, "dryRun defaults true: no children should be spawned")
	assert.Equal(t, true, result.Output["dryRun"])
	assert.NotNil(t, result.Output["plannedTasks"])
	assert.Equal(t, 1, client.calls)
}

func TestHandle_DryRunFalseSpawnsChildren(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{
			{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}},
		},
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file", "dryRun": false}}
	result, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.NoError(t, err)
	require.Len(t, result.ChildTasks, 1)
	assert.Equal(t, "root-write", result.ChildTasks[0].ID)
}

func TestHandle_RetriesOnInvalidPlanThenSucceeds(t *testing.T) {
	client := &stubClient{plans: []model.Plan{
		{Tasks: []model.TaskSpec{{ID: "bad", Service: "docs", Command: "shred"}}},
		{Tasks: []model.TaskSpec{{ID: "good", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}}},
	}}
	p := New(client, newRegistry(t))
	p.MaxRetries = 3

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file", "dryRun": false}}
	result, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.NoError(t, err)
	require.Len(t, result.ChildTasks, 1)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 1, result.Output["retriesUsed"])
}

func TestHandle_ExhaustsRetriesAndFails(t *testing.T) {
	client := &stubClient{plans: []model.Plan{
		{Tasks: []model.TaskSpec{{ID: "bad", Service: "docs", Command: "shred"}}},
	}}
	p := New(client, newRegistry(t))
	p.MaxRetries = 2

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file"}}
	_, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.Error(t, err)
	assert.Equal(t, 3, client.calls) // initial attempt + 2 retries
}

func TestHandle_MissingPromptRejected(t *testing.T) {
	p := New(&stubClient{}, newRegistry(t))
	_, err := p.Handle(context.Background(), model.Task{ID: "root"}, fakeJobContext{})
	require.Error(t, err)
}

func TestHandle_DependencyOutputsIncludedInPrompt(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}},
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "use prior output"}, DependsOn: []string{"upstream"}}
	jc := fakeJobContext{outputs: map[string]map[string]interface{}{"upstream": {"path": "found.txt"}}}

	prompt := p.buildPrompt(task, "use prior output", "", jc, nil)
	assert.Contains(t, prompt, "Dependency Task Results")
	assert.Contains(t, prompt, "upstream")
	assert.Contains(t, prompt, "found.txt")
}

func TestBuildPrompt_AccumulatedErrorsClippedToFirstFiveWithSummaryTail(t *testing.T) {
	p := New(&stubClient{}, newRegistry(t))
	task := model.Task{ID: "root"}

	accumulated := []string{"err-1", "err-2", "err-3", "err-4", "err-5", "err-6", "err-7"}
	prompt := p.buildPrompt(task, "write a file", "", fakeJobContext{}, accumulated)

	for _, want := range accumulated[:5] {
		assert.Contains(t, prompt, want)
	}
	for _, unwanted := range accumulated[5:] {
		assert.NotContains(t, prompt, unwanted)
	}
	assert.Contains(t, prompt, "2 more error(s) omitted")
}

func TestBuildPrompt_IncludesOptionalContext(t *testing.T) {
	p := New(&stubClient{}, newRegistry(t))
	task := model.Task{ID: "root"}

	prompt := p.buildPrompt(task, "write a file", "target repo is read-only", fakeJobContext{}, nil)
	assert.Contains(t, prompt, "Context: target repo is read-only")
}

func TestHandle_DepthAtMaxDepthFailsImmediatelyWithoutCallingModel(t *testing.T) {
	client := &stubClient{}
	p := New(client, newRegistry(t))

	task := model.Task{
		ID:    "root",
		Depth: 10,
		Input: map[string]interface{}{"prompt": "do something", "maxDepth": 10},
	}
	_, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot orchestrate at depth 10")
	assert.Contains(t, err.Error(), "Maximum depth is 10")
	assert.Equal(t, 0, client.calls, "the model must never be called once the depth ceiling is hit")
}

func TestHandle_DepthBelowMaxDepthProceeds(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}},
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{
		ID:    "root",
		Depth: 9,
		Input: map[string]interface{}{"prompt": "do something", "maxDepth": 10},
	}
	_, err := p.Handle(context.Background(), task, fakeJobContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestHandle_DepthCeilingUsesDefaultMaxDepthWhenInputOmitsIt(t *testing.T) {
	client := &stubClient{}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Depth: 10, Input: map[string]interface{}{"prompt": "do something"}}
	_, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Maximum depth is 10")
}

func TestHandle_PlanExceedingMaxChildTasksFailsWithoutRetry(t *testing.T) {
	tasks := make([]model.TaskSpec, 3)
	for i := range tasks {
		tasks[i] = model.TaskSpec{Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}
	}
	client := &stubClient{plans: []model.Plan{{Tasks: tasks}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write many files", "maxChildTasks": 2}}
	_, err := p.Handle(context.Background(), task, fakeJobContext{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeding maxChildTasks limit of 2")
	assert.Equal(t, 1, client.calls, "a maxChildTasks breach must not trigger a retry")
}

func TestHandle_PlanWithinMaxChildTasksSucceeds(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}},
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file", "maxChildTasks": 2, "dryRun": false}}
	result, err := p.Handle(context.Background(), task, fakeJobContext{})
	require.NoError(t, err)
	require.Len(t, result.ChildTasks, 1)
}

func TestHandle_TemperatureInputReachesModelClient(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}},
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file", "temperature": 0.9}}
	_, err := p.Handle(context.Background(), task, fakeJobContext{})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, client.lastOpt.Temperature, 0.0001)
}

func TestHandle_VerboseInputIncludesPromptsInAudit(t *testing.T) {
	client := &stubClient{plans: []model.Plan{{
		Tasks: []model.TaskSpec{{ID: "write", Service: "docs", Command: "write", Input: map[string]interface{}{"path": "a.txt"}}},
	}}}
	p := New(client, newRegistry(t))

	task := model.Task{ID: "root", Input: map[string]interface{}{"prompt": "write a file", "verbose": true}}
	result, err := p.Handle(context.Background(), task, fakeJobContext{})
	require.NoError(t, err)
	prompts, ok := result.Audit["prompts"].([]string)
	require.True(t, ok, "verbose audit must include the prompts sent to the model")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Objective: write a file")
}
