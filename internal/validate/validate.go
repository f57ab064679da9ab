// Package validate implements the plan validator: structural, schema,
// identifier-normalization, and graph-shape validation of a set of
// task specs (an AI-generated Plan, or the initial tasks of a job
// submission) against the handler registry.
//
// Validation runs in five ordered passes; later passes run only if
// every earlier pass produced zero errors. Schema validation runs
// before graph validation deliberately: malformed inputs are a far
// more common failure mode than dependency cycles, and schema errors
// are more actionable for both humans and an AI retry loop.
package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rparedes/taskgraph/internal/graph"
	"github.com/rparedes/taskgraph/internal/model"
	"github.com/rparedes/taskgraph/internal/registry"
)

// ExistingNodes answers whether an identifier already exists in the
// graph the validated tasks will ultimately be inserted into. For the
// initial job submission this is always "no" (an empty graph); for a
// spawned child batch it is the live job graph, queried read-only.
type ExistingNodes interface {
	HasNode(id string) bool
}

type emptyGraph struct{}

func (emptyGraph) HasNode(string) bool { return false }

// EmptyGraph is an ExistingNodes with no members, used for validating
// a job's initial task list, which has no pre-existing graph to
// reference.
var EmptyGraph ExistingNodes = emptyGraph{}

// Validator runs the validation pipeline against a handler registry.
type Validator struct {
	Registry *registry.Registry
}

// New returns a Validator backed by reg.
func New(reg *registry.Registry) *Validator {
	return &Validator{Registry: reg}
}

// Validate runs the full pipeline against specs. orchestratorID is
// the id of the task that owns this batch (the parent task, for a
// spawned-children batch) and drives identifier normalization
// (pass 4): every child id is prefixed with "<orchestratorID>-"
// unless already so prefixed, and a dependsOn reference is prefixed
// only when it does not already name a task in the batch or in
// existing (pass 5). Pass orchestratorID == "" to validate a job's
// initial task list, where no such prefix applies and ids are taken
// literally.
//
// existing lets pass 5 resolve a dependsOn reference against tasks
// already present in the live graph (e.g. the spawning parent, or an
// unrelated sibling task elsewhere in the job), not just against the
// batch being validated.
func (v *Validator) Validate(orchestratorID string, specs []model.TaskSpec, existing ExistingNodes) (model.ValidationReport, []model.ChildTaskSpec) {
	report := model.ValidationReport{IsValid: true, Timestamp: now()}

	// Pass 1: structural.
	if len(specs) == 0 {
		report.AddWarning("plan has no tasks")
	}
	for i, spec := range specs {
		if spec.Service == "" {
			report.AddError(fmt.Sprintf("task[%d]: service is required", i))
		}
		if spec.Command == "" {
			report.AddError(fmt.Sprintf("task[%d]: command is required", i))
		}
	}
	report.TasksValidated = len(specs)
	if !report.IsValid {
		return report, nil
	}

	// Pass 2: service/command existence.
	if v.Registry != nil {
		for i, spec := range specs {
			if !v.Registry.Has(spec.Service, spec.Command) {
				report.AddError(fmt.Sprintf("task[%d]: unknown service/command %s/%s", i, spec.Service, spec.Command))
			}
		}
	}
	if !report.IsValid {
		return report, nil
	}

	// Pass 3: input validation against the resolved definition's schema,
	// or required-parameter presence when no schema is attached.
	if v.Registry != nil {
		for i, spec := range specs {
			def, _ := v.Registry.GetDefinition(spec.Service, spec.Command)
			if errs := validateInput(def, spec.Input); len(errs) > 0 {
				for _, e := range errs {
					report.AddError(fmt.Sprintf("task[%d] (%s/%s): %s", i, spec.Service, spec.Command, e))
				}
			}
		}
	}
	if !report.IsValid {
		return report, nil
	}

	// Pass 4: identifier normalization.
	normalized, idErrs := normalizeIdentifiers(orchestratorID, specs, &report)
	if len(idErrs) > 0 {
		for _, e := range idErrs {
			report.AddError(e)
		}
		return report, nil
	}

	// Pass 5: graph-shape validation via a scratch graph.
	children, shapeErrs := validateShape(orchestratorID, normalized, existing, &report)
	if len(shapeErrs) > 0 {
		for _, e := range shapeErrs {
			report.AddError(e)
		}
		return report, nil
	}

	return report, children
}

func now() time.Time { return time.Now() }

// validateInput checks spec's input against def's JSON-Schema, or
// against def's RequiredParams by name when def carries no schema.
func validateInput(def registry.Definition, input map[string]interface{}) []string {
	if input == nil {
		input = map[string]interface{}{}
	}

	if def.InputSchema != "" {
		return validateAgainstSchema(def.InputSchema, input)
	}

	var errs []string
	for _, param := range def.RequiredParams {
		if _, ok := input[param]; !ok {
			errs = append(errs, fmt.Sprintf("missing required parameter %q", param))
		}
	}
	return errs
}

func validateAgainstSchema(schemaDoc string, input map[string]interface{}) []string {
	var schemaAny any
	if err := json.Unmarshal([]byte(schemaDoc), &schemaAny); err != nil {
		return []string{fmt.Sprintf("invalid input schema: %v", err)}
	}

	// Round-trip the input through JSON so numeric types match what the
	// schema validator expects from a decoded JSON document.
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return []string{fmt.Sprintf("input is not JSON-serializable: %v", err)}
	}
	var inputAny any
	if err := json.Unmarshal(inputJSON, &inputAny); err != nil {
		return []string{fmt.Sprintf("input round-trip failed: %v", err)}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("input.json", schemaAny); err != nil {
		return []string{fmt.Sprintf("invalid input schema: %v", err)}
	}
	schema, err := compiler.Compile("input.json")
	if err != nil {
		return []string{fmt.Sprintf("invalid input schema: %v", err)}
	}

	if err := schema.Validate(inputAny); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// normalizeIdentifiers applies pass 4's identifier normalization.
// When orchestratorID is "", ids are taken literally (job submission
// case): duplicates are still rejected, but no prefix is applied.
func normalizeIdentifiers(orchestratorID string, specs []model.TaskSpec, report *model.ValidationReport) ([]model.TaskSpec, []string) {
	var prefix string
	if orchestratorID != "" {
		prefix = orchestratorID + "-"
	}

	normalized := make([]model.TaskSpec, len(specs))
	seen := make(map[string]struct{}, len(specs))
	var errs []string

	for i, spec := range specs {
		id := spec.ID
		switch {
		case prefix == "":
			// literal id required for the job-submission case
			if id == "" {
				errs = append(errs, fmt.Sprintf("task[%d]: id is required", i))
				continue
			}
		case strings.HasPrefix(id, prefix):
			// already normalized, kept as-is
		case id != "":
			report.AddWarning(fmt.Sprintf("task[%d]: id %q renamed to %q", i, id, prefix+id))
			id = prefix + id
		default:
			id = prefix + strconv.Itoa(i)
		}

		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("task[%d]: duplicate id %q", i, id))
			continue
		}
		seen[id] = struct{}{}

		spec.ID = id
		normalized[i] = spec
	}

	return normalized, errs
}

// validateShape builds a scratch graph of the orchestrator vertex (if
// any) plus every normalized task, resolves each dependsOn reference,
// and checks for cycles. It returns the normalized specs converted to
// ChildTaskSpecs on success.
func validateShape(orchestratorID string, specs []model.TaskSpec, existing ExistingNodes, report *model.ValidationReport) ([]model.ChildTaskSpec, []string) {
	scratch := graph.New()
	var errs []string

	if orchestratorID != "" {
		_ = scratch.AddNode(orchestratorID, &model.Task{ID: orchestratorID, Status: model.StatusSucceeded})
	}
	for _, spec := range specs {
		_ = scratch.AddNode(spec.ID, &model.Task{ID: spec.ID, Status: model.StatusPending})
	}

	prefix := ""
	if orchestratorID != "" {
		prefix = orchestratorID + "-"
	}

	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			resolved := dep
			if !scratch.HasNode(resolved) && !existing.HasNode(resolved) {
				candidate := prefix + dep
				if scratch.HasNode(candidate) || existing.HasNode(candidate) {
					report.AddWarning(fmt.Sprintf("task %q: dependency %q renamed to %q", spec.ID, dep, candidate))
					resolved = candidate
				} else {
					errs = append(errs, fmt.Sprintf("task %q: unresolved dependency %q", spec.ID, dep))
					continue
				}
			}
			if scratch.HasNode(resolved) {
				if err := scratch.AddEdge(resolved, spec.ID); err != nil {
					errs = append(errs, err.Error())
				}
			}
			// A dependency resolved against the live graph (existing),
			// rather than this batch's scratch graph, cannot introduce a
			// cycle: it is already a completed/in-flight ancestor.
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	if err := scratch.ValidateNoCycles(); err != nil {
		return nil, []string{err.Error()}
	}

	children := make([]model.ChildTaskSpec, 0, len(specs))
	for _, spec := range specs {
		deps := make([]string, 0, len(spec.DependsOn))
		for _, dep := range spec.DependsOn {
			if scratch.HasNode(dep) || existing.HasNode(dep) {
				deps = append(deps, dep)
				continue
			}
			deps = append(deps, prefix+dep)
		}
		children = append(children, model.ChildTaskSpec{
			ID:        spec.ID,
			Service:   spec.Service,
			Command:   spec.Command,
			Input:     spec.Input,
			DependsOn: deps,
		})
	}

	return children, nil
}
