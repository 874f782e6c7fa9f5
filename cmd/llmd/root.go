package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmd/internal/common/fsutil"
	"llmd/internal/config"
	"llmd/internal/engine"
	"llmd/internal/hub"
	"llmd/internal/memory"
	"llmd/internal/orchestrator"
	"llmd/internal/registry"
)

const (
	defaultAddr      = ":8080"
	defaultModelsDir = "~/.llmd/models"
	defaultLogLevel  = "info"

	engineRequestTimeout = 5 * time.Minute
	engineConnectTimeout = 10 * time.Second
)

// rootOpts carries the persistent flag values. Empty strings mean
// "unspecified" so config-file values survive unless explicitly overridden.
type rootOpts struct {
	configPath   string
	addr         string
	modelsDir    string
	hubURL       string
	engineURL    string
	defaultModel string
	logLevel     string
	temperature  float64
	ctxSize      int
	threads      int
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:           "llmd",
		Short:         "Local model manager and query daemon",
		Long:          "llmd manages a local store of language models and serves free-text and structured queries against them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.addr, "addr", "", "HTTP listen address (default :8080)")
	pf.StringVar(&opts.modelsDir, "models-dir", "", "Model store directory (default ~/.llmd/models)")
	pf.StringVar(&opts.hubURL, "hub-url", "", "Model hub base URL (default huggingface.co)")
	pf.StringVar(&opts.engineURL, "engine-url", "", "Inference server base URL; empty uses the in-process engine")
	pf.StringVar(&opts.defaultModel, "default-model", "", "Model used when a request names none")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (default info)")
	pf.Float64Var(&opts.temperature, "temperature", 0, "Default sampling temperature for free-text queries")
	pf.IntVar(&opts.ctxSize, "ctx-size", 4096, "Context window for the in-process engine")
	pf.IntVar(&opts.threads, "threads", 0, "Threads for the in-process engine (0 = all cores)")

	cmd.AddCommand(
		newServeCmd(opts),
		newPullCmd(opts),
		newListCmd(opts),
		newInfoCmd(opts),
		newRmCmd(opts),
		newRunCmd(opts),
		newChatCmd(opts),
		newQueryCmd(opts),
	)
	return cmd
}

// app is the wired process: one registry, one orchestrator, shared by every
// subcommand.
type app struct {
	cfg  config.Config
	log  zerolog.Logger
	reg  *registry.Registry
	orch *orchestrator.Orchestrator
}

// buildApp resolves configuration (file, then env, then flags), sets up
// logging, and wires the hub, engine, admission controller, registry and
// orchestrator.
func (o *rootOpts) buildApp() (*app, error) {
	cfg, err := o.resolveConfig()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	modelsDir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve models dir: %w", err)
	}

	hubOpts := []hub.Option{hub.WithBaseURL(cfg.HubURL)}
	if token := os.Getenv("LLMD_HUB_TOKEN"); token != "" {
		hubOpts = append(hubOpts, hub.WithToken(token))
	}
	hubClient := hub.NewClient(hubOpts...)

	var eng engine.Engine
	if cfg.EngineURL != "" {
		eng = engine.NewServerEngine(cfg.EngineURL, os.Getenv("LLMD_ENGINE_API_KEY"),
			engineRequestTimeout, engineConnectTimeout)
	} else {
		eng = engine.NewLlamaEngine(o.ctxSize, o.threads)
	}

	adm := memory.NewController(eng.ActiveMemory)
	reg := registry.New(modelsDir, hubClient, eng, adm, log)
	orch := orchestrator.New(reg, adm, cfg.Temperature, log)

	return &app{cfg: cfg, log: log, reg: reg, orch: orch}, nil
}

// resolveConfig layers file values under env values under flag values.
func (o *rootOpts) resolveConfig() (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", o.configPath, err)
		}
		cfg = loaded
	}

	overlayString(&cfg.Addr, os.Getenv("LLMD_ADDR"), o.addr)
	overlayString(&cfg.ModelsDir, os.Getenv("LLMD_MODELS_DIR"), o.modelsDir)
	overlayString(&cfg.HubURL, os.Getenv("LLMD_HUB_URL"), o.hubURL)
	overlayString(&cfg.EngineURL, os.Getenv("LLMD_ENGINE_URL"), o.engineURL)
	overlayString(&cfg.DefaultModel, os.Getenv("LLMD_DEFAULT_MODEL"), o.defaultModel)
	overlayString(&cfg.LogLevel, os.Getenv("LLMD_LOG_LEVEL"), o.logLevel)
	if o.temperature > 0 {
		cfg.Temperature = o.temperature
	}

	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = defaultModelsDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	return cfg, nil
}

// overlayString applies each non-empty candidate in order, last wins.
func overlayString(dst *string, candidates ...string) {
	for _, c := range candidates {
		if c != "" {
			*dst = c
		}
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().
		Logger(), nil
}
