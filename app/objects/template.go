package objects

import (
	"fmt"
	"os"
	"time"

	"conductor/app/db/models"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"
	"conductor/pkg/gormx"

	"gopkg.in/yaml.v2"
)

// TemplateSpec is the authored shape of a workflow template.
type TemplateSpec struct {
	ID     string              `yaml:"id"`
	Name   string              `yaml:"name"`
	Urgent bool                `yaml:"urgent"`
	DueIn  string              `yaml:"due_in"`
	Groups map[string][]string `yaml:"groups"`
	Tasks  []*TaskSpec         `yaml:"tasks"`
}

type TaskSpec struct {
	APIName                string           `yaml:"api_name"`
	Name                   string           `yaml:"name"`
	Description            string           `yaml:"description"`
	Parents                []string         `yaml:"parents"`
	RevertTask             string           `yaml:"revert_task"`
	RequireCompletionByAll bool             `yaml:"require_completion_by_all"`
	StarterIsPerformer     bool             `yaml:"starter_is_performer"`
	Performers             []*PerformerSpec `yaml:"performers"`
	Delay                  string           `yaml:"delay"`
	DueIn                  string           `yaml:"due_in"`
	Checklists             int              `yaml:"checklists"`
	Conditions             []*ConditionSpec `yaml:"conditions"`
}

type PerformerSpec struct {
	Type             string `yaml:"type"`
	ID               string `yaml:"id"`
	NotifyOnComplete bool   `yaml:"notify_on_complete"`
}

type ConditionSpec struct {
	APIName  string   `yaml:"api_name"`
	Action   string   `yaml:"action"`
	Operator string   `yaml:"operator"`
	Rules    []string `yaml:"rules"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, fmt.Sprintf(format, args...))
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, invalid("bad duration %q", value)
	}
	return d, nil
}

// Validate checks what instantiation relies on. Acyclicity is assumed.
func (s *TemplateSpec) Validate() error {
	if len(s.Tasks) == 0 {
		return invalid("template %q has no tasks", s.Name)
	}
	if _, err := parseDuration(s.DueIn); err != nil {
		return err
	}
	names := map[string]bool{}
	for _, t := range s.Tasks {
		if t.APIName == "" {
			return invalid("task %q has no api_name", t.Name)
		}
		if names[t.APIName] {
			return invalid("duplicate api_name %q", t.APIName)
		}
		names[t.APIName] = true
	}
	for _, t := range s.Tasks {
		for _, p := range t.Parents {
			if !names[p] || p == t.APIName {
				return invalid("task %q references unknown parent %q", t.APIName, p)
			}
		}
		if t.RevertTask != "" && (!names[t.RevertTask] || t.RevertTask == t.APIName) {
			return invalid("task %q references unknown revert task %q", t.APIName, t.RevertTask)
		}
		for _, p := range t.Performers {
			switch p.Type {
			case models.PerformerUser, models.PerformerGroup, models.PerformerGuest:
			default:
				return invalid("task %q has performer of unknown type %q", t.APIName, p.Type)
			}
			if p.ID == "" {
				return invalid("task %q has performer without id", t.APIName)
			}
		}
		for _, c := range t.Conditions {
			switch c.Action {
			case models.ConditionStartTask, models.ConditionSkipTask, models.ConditionEndWorkflow:
			default:
				return invalid("task %q has condition with unknown action %q", t.APIName, c.Action)
			}
			if c.Operator != "" && c.Operator != "all" && c.Operator != "any" {
				return invalid("task %q has condition with unknown operator %q", t.APIName, c.Operator)
			}
		}
		if _, err := parseDuration(t.Delay); err != nil {
			return err
		}
		if _, err := parseDuration(t.DueIn); err != nil {
			return err
		}
	}
	return nil
}

func ParseTemplate(data []byte) (*TemplateSpec, error) {
	spec := &TemplateSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, invalid("%s", err.Error())
	}
	return spec, spec.Validate()
}

func LoadTemplateFile(path string) (*TemplateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTemplate(data)
}

// CreateWorkflowFromSpec instantiates the template: a RUNNING workflow and
// PENDING tasks with their performers, template delays and conditions.
func CreateWorkflowFromSpec(ctx *contextx.Context, spec *TemplateSpec, kickoff map[string]string, starterID, ancestorTaskID string) (*Workflow, []*Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()

	for group, users := range spec.Groups {
		for _, user := range users {
			if err := AddGroupMember(ctx, group, user); err != nil {
				return nil, nil, err
			}
		}
	}

	wf := NewWorkflow()
	wf.AccountID = ctx.GetAccountID()
	wf.TemplateID = spec.ID
	wf.Name = spec.Name
	wf.Status = states.RUNNING
	wf.IsUrgent = spec.Urgent
	wf.StarterID = starterID
	wf.AncestorTaskID = ancestorTaskID
	wf.Kickoff = gormx.StringMap(kickoff)
	if dueIn, _ := parseDuration(spec.DueIn); dueIn > 0 {
		due := now.Add(dueIn)
		wf.DueDate = &due
	}
	members := gormx.StringSlice{}
	if starterID != "" {
		members = append(members, starterID)
	}
	for _, t := range spec.Tasks {
		for _, p := range t.Performers {
			if p.Type == models.PerformerUser && !members.Has(p.ID) {
				members = append(members, p.ID)
			}
		}
	}
	wf.Members = members
	if err := wf.Save(ctx); err != nil {
		return nil, nil, err
	}

	tasks := make([]*Task, 0, len(spec.Tasks))
	for i, ts := range spec.Tasks {
		t := NewTask()
		t.WorkflowID = wf.ID
		t.APIName = ts.APIName
		t.Number = i + 1
		t.Name = ts.Name
		t.Description = ts.Description
		t.Parents = gormx.StringSlice(append([]string{}, ts.Parents...))
		t.Status = states.PENDING
		t.RevertTask = ts.RevertTask
		t.RequireCompletionByAll = ts.RequireCompletionByAll
		t.StarterIsPerformer = ts.StarterIsPerformer
		t.ChecklistsTotal = ts.Checklists
		t.IsUrgent = spec.Urgent
		dueIn, _ := parseDuration(ts.DueIn)
		t.DueInSeconds = int64(dueIn / time.Second)
		if err := t.Save(ctx); err != nil {
			return nil, nil, err
		}

		for _, ps := range ts.Performers {
			p := NewPerformer(t.ID, ps.Type, ps.ID)
			p.NotifyOnComplete = ps.NotifyOnComplete
			if err := p.Save(ctx); err != nil {
				return nil, nil, err
			}
		}
		if delay, _ := parseDuration(ts.Delay); delay > 0 {
			if err := NewDelay(t.ID, delay, models.DelayOriginTemplate).Save(ctx); err != nil {
				return nil, nil, err
			}
		}
		for j, cs := range ts.Conditions {
			c := NewCondition()
			c.TaskID = t.ID
			c.APIName = cs.APIName
			c.Position = j
			c.Action = cs.Action
			c.Operator = cs.Operator
			if c.Operator == "" {
				c.Operator = "all"
			}
			c.Rules = gormx.StringSlice(append([]string{}, cs.Rules...))
			if err := c.Save(ctx); err != nil {
				return nil, nil, err
			}
		}
		tasks = append(tasks, t)
	}
	return wf, tasks, nil
}
