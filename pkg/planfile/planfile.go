// Package planfile parses YAML plan documents and compiles them into the
// template catalog. A plan document describes the full authored hierarchy:
// plan, sequences, phases, steps with instructions, and phase-level controls.
package planfile

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cutoverhq/cutover/pkg/engine"
)

// Document is the root of a YAML plan file.
type Document struct {
	// Name is the plan's display name.
	Name string `yaml:"name" validate:"required"`

	// Description is the plan description.
	Description string `yaml:"description,omitempty"`

	// Sequences are the plan's ordered sequences.
	Sequences []Sequence `yaml:"sequences" validate:"required,min=1,dive"`
}

// Sequence is one sequence under the plan.
type Sequence struct {
	Name        string  `yaml:"name" validate:"required"`
	Description string  `yaml:"description,omitempty"`
	After       string  `yaml:"after,omitempty"`
	Duration    string  `yaml:"duration,omitempty"`
	Owner       string  `yaml:"owner,omitempty"`
	Phases      []Phase `yaml:"phases" validate:"required,min=1,dive"`
}

// Phase is one phase under a sequence. Phases hold steps and controls.
type Phase struct {
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description,omitempty"`
	After       string    `yaml:"after,omitempty"`
	Duration    string    `yaml:"duration,omitempty"`
	Owner       string    `yaml:"owner,omitempty"`
	Steps       []Step    `yaml:"steps,omitempty" validate:"dive"`
	Controls    []Control `yaml:"controls,omitempty" validate:"dive"`
}

// Step is one executable step under a phase.
type Step struct {
	Name         string        `yaml:"name" validate:"required"`
	Description  string        `yaml:"description,omitempty"`
	After        string        `yaml:"after,omitempty"`
	Duration     string        `yaml:"duration,omitempty"`
	Owner        string        `yaml:"owner,omitempty"`
	Instructions []Instruction `yaml:"instructions,omitempty" validate:"dive"`
}

// Instruction is one atomic work item under a step.
type Instruction struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	After       string `yaml:"after,omitempty"`
	Duration    string `yaml:"duration,omitempty"`
	Owner       string `yaml:"owner,omitempty"`
}

// Control is a checkpoint or quality gate attached to a phase.
type Control struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Owner       string `yaml:"owner,omitempty"`
}

// Parse unmarshals and validates a plan document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("plan file validation failed: %w", err)
	}

	return &doc, nil
}

// ParseFile reads and parses a plan document from disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Compiler turns parsed plan documents into template catalog nodes.
type Compiler struct {
	catalog *engine.TemplateCatalog

	// teams maps team names used in plan files to team IDs.
	teams map[string]string
}

// NewCompiler creates a compiler targeting the given catalog.
func NewCompiler(catalog *engine.TemplateCatalog, teams map[string]string) *Compiler {
	if teams == nil {
		teams = map[string]string{}
	}
	return &Compiler{catalog: catalog, teams: teams}
}

// Compile authors the document's full hierarchy into the catalog and returns
// the plan root node. "after" references resolve by sibling name; list
// position becomes the display order.
func (c *Compiler) Compile(doc *Document) (*engine.TemplateNode, error) {
	plan, err := c.catalog.CreateNode(engine.KindPlan, "", 0, doc.Name,
		engine.WithDescription(doc.Description))
	if err != nil {
		return nil, fmt.Errorf("failed to create plan %q: %w", doc.Name, err)
	}

	seqIDs := map[string]string{}
	for i, seq := range doc.Sequences {
		opts, err := c.nodeOptions(seq.Description, seq.Duration, seq.Owner, seq.After, seqIDs)
		if err != nil {
			return nil, fmt.Errorf("sequence %q: %w", seq.Name, err)
		}
		seqNode, err := c.catalog.CreateNode(engine.KindSequence, plan.ID, i, seq.Name, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create sequence %q: %w", seq.Name, err)
		}
		seqIDs[seq.Name] = seqNode.ID

		if err := c.compilePhases(seqNode.ID, seq.Phases); err != nil {
			return nil, fmt.Errorf("sequence %q: %w", seq.Name, err)
		}
	}

	return plan, nil
}

func (c *Compiler) compilePhases(sequenceID string, phases []Phase) error {
	phaseIDs := map[string]string{}
	for i, ph := range phases {
		opts, err := c.nodeOptions(ph.Description, ph.Duration, ph.Owner, ph.After, phaseIDs)
		if err != nil {
			return fmt.Errorf("phase %q: %w", ph.Name, err)
		}
		phNode, err := c.catalog.CreateNode(engine.KindPhase, sequenceID, i, ph.Name, opts...)
		if err != nil {
			return fmt.Errorf("failed to create phase %q: %w", ph.Name, err)
		}
		phaseIDs[ph.Name] = phNode.ID

		if err := c.compileSteps(phNode.ID, ph.Steps); err != nil {
			return fmt.Errorf("phase %q: %w", ph.Name, err)
		}
		for j, ctl := range ph.Controls {
			ctlOpts, err := c.nodeOptions(ctl.Description, "", ctl.Owner, "", nil)
			if err != nil {
				return fmt.Errorf("control %q: %w", ctl.Name, err)
			}
			if _, err := c.catalog.CreateNode(engine.KindControl, phNode.ID, j, ctl.Name, ctlOpts...); err != nil {
				return fmt.Errorf("failed to create control %q: %w", ctl.Name, err)
			}
		}
	}
	return nil
}

func (c *Compiler) compileSteps(phaseID string, steps []Step) error {
	stepIDs := map[string]string{}
	for i, st := range steps {
		opts, err := c.nodeOptions(st.Description, st.Duration, st.Owner, st.After, stepIDs)
		if err != nil {
			return fmt.Errorf("step %q: %w", st.Name, err)
		}
		stNode, err := c.catalog.CreateNode(engine.KindStep, phaseID, i, st.Name, opts...)
		if err != nil {
			return fmt.Errorf("failed to create step %q: %w", st.Name, err)
		}
		stepIDs[st.Name] = stNode.ID

		instrIDs := map[string]string{}
		for j, ins := range st.Instructions {
			insOpts, err := c.nodeOptions(ins.Description, ins.Duration, ins.Owner, ins.After, instrIDs)
			if err != nil {
				return fmt.Errorf("instruction %q: %w", ins.Name, err)
			}
			insNode, err := c.catalog.CreateNode(engine.KindInstruction, stNode.ID, j, ins.Name, insOpts...)
			if err != nil {
				return fmt.Errorf("failed to create instruction %q: %w", ins.Name, err)
			}
			instrIDs[ins.Name] = insNode.ID
		}
	}
	return nil
}

// nodeOptions assembles creation options from the document fields shared by
// every level. siblings maps already-created sibling names to IDs for "after"
// resolution; forward references are rejected.
func (c *Compiler) nodeOptions(description, duration, owner, after string, siblings map[string]string) ([]engine.NodeOption, error) {
	var opts []engine.NodeOption

	if description != "" {
		opts = append(opts, engine.WithDescription(description))
	}

	if duration != "" {
		d, err := time.ParseDuration(duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", duration, err)
		}
		opts = append(opts, engine.WithDuration(d))
	}

	if owner != "" {
		teamID, ok := c.teams[owner]
		if !ok {
			return nil, fmt.Errorf("unknown team %q", owner)
		}
		opts = append(opts, engine.WithOwnerTeam(teamID))
	}

	if after != "" {
		predID, ok := siblings[after]
		if !ok {
			return nil, fmt.Errorf("after references unknown sibling %q", after)
		}
		opts = append(opts, engine.WithPredecessor(predID))
	}

	return opts, nil
}
