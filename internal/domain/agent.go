package domain

import (
	"strconv"
	"strings"
)

// AgentDefinition is a declarative sub-agent record loaded from a markdown
// file with YAML frontmatter. Instances are immutable after discovery.
type AgentDefinition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools,omitempty"`
	Skills      []string `yaml:"skills,omitempty"`
	MaxSteps    int      `yaml:"max_steps,omitempty"`

	// Prompt is the body after the frontmatter block, trimmed. It may
	// contain a {{task}} placeholder substituted at dispatch time.
	Prompt string `yaml:"-"`
	// Path is the file the definition was loaded from.
	Path string `yaml:"-"`
}

// Metadata renders the definition as a one-line summary for inclusion in the
// coordinator's system prompt. Optional parentheticals are omitted when the
// source field is absent.
func (d AgentDefinition) Metadata() string {
	var b strings.Builder
	b.WriteString("- `" + d.Name + "`: " + d.Description)
	if len(d.Tools) > 0 {
		b.WriteString(" (tools: " + strings.Join(d.Tools, ", ") + ")")
	}
	if len(d.Skills) > 0 {
		b.WriteString(" (skills: " + strings.Join(d.Skills, ", ") + ")")
	}
	if d.MaxSteps > 0 {
		b.WriteString(" (max_steps: " + strconv.Itoa(d.MaxSteps) + ")")
	}
	return b.String()
}
