package orchestrator

import (
	"github.com/rparedes/taskgraph/internal/model"
)

// jobCtx is the registry.JobContext a handler sees while it runs: a
// read-only window onto the rest of the job's graph, synchronized
// through the same mutex as every other graph mutation.
type jobCtx struct {
	o *Orchestrator
}

func (o *Orchestrator) jobContext() jobCtx {
	return jobCtx{o: o}
}

func (j jobCtx) GetTask(id string) (model.TaskSnapshot, bool) {
	j.o.mu.Lock()
	defer j.o.mu.Unlock()
	t := j.o.graph.GetNode(id)
	if t == nil {
		return model.TaskSnapshot{}, false
	}
	return t.Snapshot(), true
}

func (j jobCtx) GetTaskOutput(id string) (map[string]interface{}, bool) {
	j.o.mu.Lock()
	defer j.o.mu.Unlock()
	t := j.o.graph.GetNode(id)
	if t == nil {
		return nil, false
	}
	return t.Output, true
}

func (j jobCtx) GetTaskStatus(id string) (model.Status, bool) {
	j.o.mu.Lock()
	defer j.o.mu.Unlock()
	t := j.o.graph.GetNode(id)
	if t == nil {
		return "", false
	}
	return t.Status, true
}

func (j jobCtx) Verbose() bool {
	return j.o.spec.Verbose
}
