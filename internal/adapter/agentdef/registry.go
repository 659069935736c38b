package agentdef

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sentinel-agent/internal/domain"
)

// Registry discovers and indexes sub-agent definitions from a directory of
// markdown files with YAML frontmatter. Definitions are loaded once and
// read-only thereafter.
type Registry struct {
	dir    string
	logger *slog.Logger

	byName map[string]*domain.AgentDefinition
	order  []string
}

// NewRegistry creates a registry reading from dir.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	return &Registry{
		dir:    dir,
		logger: logger,
		byName: make(map[string]*domain.AgentDefinition),
	}
}

// LoadFile loads a single agent definition from a markdown file.
// Malformed files are a soft failure: a warning is logged and nil is returned.
func (r *Registry) LoadFile(path string) *domain.AgentDefinition {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("agent definition unreadable", "path", path, "error", err)
		return nil
	}

	front, body, ok := splitFrontmatter(string(data))
	if !ok {
		r.logger.Warn("agent definition missing frontmatter", "path", path)
		return nil
	}

	var def domain.AgentDefinition
	if err := yaml.Unmarshal([]byte(front), &def); err != nil {
		r.logger.Warn("agent definition frontmatter invalid", "path", path, "error", err)
		return nil
	}

	if def.Name == "" || def.Description == "" {
		r.logger.Warn("agent definition missing required fields", "path", path)
		return nil
	}

	def.Prompt = strings.TrimSpace(body)
	def.Path = path
	return &def
}

// Discover scans the registry directory (non-recursive) for *.md files and
// loads each one, skipping failures. A definition with a name already seen
// silently replaces the earlier one. A missing directory yields an empty
// result with a warning, never an error.
func (r *Registry) Discover() []*domain.AgentDefinition {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.Warn("agents directory not readable", "dir", r.dir, "error", err)
		return nil
	}

	var defs []*domain.AgentDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		def := r.LoadFile(filepath.Join(r.dir, entry.Name()))
		if def == nil {
			continue
		}
		if _, seen := r.byName[def.Name]; !seen {
			r.order = append(r.order, def.Name)
		}
		r.byName[def.Name] = def
		defs = append(defs, def)
	}
	return defs
}

// Get returns a loaded definition by name, or nil if absent.
func (r *Registry) Get(name string) *domain.AgentDefinition {
	return r.byName[name]
}

// Names returns the loaded agent names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// MetadataPrompt renders a section describing every loaded agent, for
// injection into the coordinator's system prompt. Returns "" when no agents
// are loaded.
func (r *Registry) MetadataPrompt() string {
	if len(r.order) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Available Sub-Agents\n\n")
	b.WriteString("You have access to specialized sub-agents. Each sub-agent is an independent agent " +
		"with its own context and capabilities, designed for specific tasks.\n\n")
	b.WriteString("Call a sub-agent using the `call_agent` tool when you need specialized assistance.\n")
	for _, name := range r.order {
		b.WriteString("\n")
		b.WriteString(r.byName[name].Metadata())
	}
	return b.String()
}

// splitFrontmatter splits a document into its YAML frontmatter and body.
// The document must start with a `---` line and contain a closing `---` line.
func splitFrontmatter(content string) (front, body string, ok bool) {
	rest, found := strings.CutPrefix(content, "---\n")
	if !found {
		// Tolerate CRLF and a leading BOM-free bare delimiter.
		rest, found = strings.CutPrefix(content, "---\r\n")
		if !found {
			return "", "", false
		}
	}

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", false
	}
	front = rest[:idx]

	body = rest[idx+len("\n---"):]
	// Drop the remainder of the closing delimiter line.
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return front, body, true
}

// Dir returns the directory this registry reads from.
func (r *Registry) Dir() string { return r.dir }
