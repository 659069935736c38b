package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"sentinel-agent/internal/adapter/agentdef"
	"sentinel-agent/internal/adapter/alert"
	"sentinel-agent/internal/adapter/llm"
	"sentinel-agent/internal/adapter/mcp"
	"sentinel-agent/internal/adapter/tool"
	"sentinel-agent/internal/domain"
	"sentinel-agent/internal/infra/config"
	"sentinel-agent/internal/infra/logger"
	"sentinel-agent/internal/infra/tracer"
	"sentinel-agent/internal/usecase"
)

const maxCallDepth = 1

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "config file path (default: ./config.yaml, then ~/.sentinel-agent/config.yaml)")
		historyN   = flag.Int("history", 0, "print the N most recent analyses and exit")
	)
	flag.Usage = showUsage
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	slog.SetDefault(log)

	if *historyN > 0 {
		return printHistory(cfg, *historyN)
	}

	if flag.NArg() < 1 {
		showUsage()
		return fmt.Errorf("missing alert file argument")
	}
	alertPath := flag.Arg(0)

	a, err := alert.Load(alertPath)
	if err != nil {
		return err
	}
	fmt.Println(alert.FormatInfo(a))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	if err := os.MkdirAll(cfg.Agent.WorkspaceDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	provider := buildProvider(cfg, log)

	// Connect tool providers. Teardown is unconditional: CloseAll runs even
	// when the run was interrupted.
	bridge := mcp.NewBridge(log)
	mcpTools, err := bridge.LoadAll(ctx, resolveMCPConfig(cfg))
	if err != nil {
		return fmt.Errorf("load tool providers: %w", err)
	}
	defer bridge.CloseAll(context.Background())

	tools := []domain.Tool{
		tool.NewSessionNoteTool(
			filepath.Join(cfg.Agent.WorkspaceDir, ".agent_memory.json"), log),
	}
	tools = append(tools, mcpTools...)

	registry := agentdef.NewRegistry(cfg.Agent.AgentsDir, log)
	defs := registry.Discover()
	log.Info("sub-agents discovered", "count", len(defs))

	tools = append(tools, tool.NewCallAgentTool(
		registry, provider, tools, cfg.Agent.WorkspaceDir, 0, maxCallDepth, log))

	toolRegistry, err := tool.FromTools(log, tools)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	systemPrompt, err := buildSystemPrompt(cfg, registry)
	if err != nil {
		return err
	}

	agent := usecase.NewAgent(usecase.AgentConfig{
		Provider:     provider,
		Tools:        toolRegistry,
		SystemPrompt: systemPrompt,
		MaxSteps:     cfg.Agent.MaxSteps,
		Logger:       log,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
	})
	agent.AddUserMessage(alert.UserMessage(a))

	log.Info("starting analysis", "alert_id", a.AlertID, "run_id", agent.RunID())

	result, err := agent.Run(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMaxSteps) && result != "" {
			log.Warn("step budget exhausted, reporting last response")
		} else {
			return fmt.Errorf("analysis failed: %w", err)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("Final Assessment:")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(result)

	recordHistory(cfg, log, agent.RunID(), a, result)
	return nil
}

// loadConfig resolves the config file: explicit flag, then ./config.yaml,
// then ~/.sentinel-agent/config.yaml. A missing file yields defaults.
func loadConfig(explicit string) (*config.Config, error) {
	path := explicit
	if path == "" {
		path = "config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if home, herr := os.UserHomeDir(); herr == nil {
				path = filepath.Join(home, ".sentinel-agent", "config.yaml")
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveMCPConfig prefers the configured path, falling back to the global
// location when the local file does not exist.
func resolveMCPConfig(cfg *config.Config) string {
	path := cfg.Agent.MCPConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if home, herr := os.UserHomeDir(); herr == nil {
			global := filepath.Join(home, ".sentinel-agent", "mcp.yaml")
			if _, gerr := os.Stat(global); gerr == nil {
				return global
			}
		}
	}
	return path
}

func buildProvider(cfg *config.Config, log *slog.Logger) domain.LLMProvider {
	base := llm.NewOpenAIProvider(cfg.LLM, log)
	return llm.NewCircuitBreakerProvider(base, llm.CircuitBreakerConfig{}, log)
}

// buildSystemPrompt assembles the coordinator prompt: role preamble,
// workspace location, sub-agent metadata, and the main.md definition body.
func buildSystemPrompt(cfg *config.Config, registry *agentdef.Registry) (string, error) {
	mainPath := filepath.Join(cfg.Agent.AgentsDir, "..", "main.md")
	if _, err := os.Stat("main.md"); err == nil {
		mainPath = "main.md"
	}

	content, err := os.ReadFile(mainPath)
	if err != nil {
		return "", fmt.Errorf("coordinator definition %s: %w", mainPath, err)
	}

	body := string(content)
	if _, rest, ok := splitMainDefinition(body); ok {
		body = rest
	}

	var sb strings.Builder
	sb.WriteString("You are a security alert coordination analyst responsible for comprehensive threat assessment.\n\n")
	sb.WriteString("## Current Workspace\n")
	sb.WriteString(cfg.Agent.WorkspaceDir + "\n\n")
	if meta := registry.MetadataPrompt(); meta != "" {
		sb.WriteString(meta)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n\nAnalyze the following security alert, delegate to sub-agents as needed, and produce a combined assessment report.\n")
	return sb.String(), nil
}

// splitMainDefinition strips an optional frontmatter block from the
// coordinator definition, returning the body.
func splitMainDefinition(content string) (front, body string, ok bool) {
	if !strings.HasPrefix(content, "---") {
		return "", content, false
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return "", content, false
	}
	return parts[1], strings.TrimSpace(parts[2]), true
}

// recordHistory stores the finished analysis. Failures are logged, not fatal.
func recordHistory(cfg *config.Config, log *slog.Logger, runID string, a *domain.Alert, assessment string) {
	store, err := alert.NewHistoryStore(cfg.Agent.HistoryDB)
	if err != nil {
		log.Warn("history store unavailable", "error", err)
		return
	}
	defer store.Close()

	if err := store.Record(context.Background(), runID, a, assessment); err != nil {
		log.Warn("failed to record analysis", "error", err)
	}
}

func printHistory(cfg *config.Config, n int) error {
	store, err := alert.NewHistoryStore(cfg.Agent.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), n)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No analyses recorded.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("[%s] %s  %s -> %s  (%s)\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.AttackType, r.AttackerIP, r.VictimIP, r.RunID)
	}
	return nil
}

func showUsage() {
	fmt.Fprintln(os.Stderr, `sentinel-agent - security alert analyzer

USAGE:
    sentinel-agent [FLAGS] <alert-file.json>

FLAGS:
    --config PATH    Config file path (default: ./config.yaml, then ~/.sentinel-agent/config.yaml)
    --history N      Print the N most recent analyses and exit

CONFIGURATION:
    Config file: ./config.yaml
    Environment: SENTINEL_* variables override config

EXAMPLES:
    sentinel-agent sample_alerts/high_severity_sqli.json
    sentinel-agent --config /etc/sentinel/config.yaml alert.json
    sentinel-agent --history 10`)
}
