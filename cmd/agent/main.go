package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/benmeehan/grid-agent/internal/agent"
	"github.com/benmeehan/grid-agent/internal/console"
	"github.com/benmeehan/grid-agent/internal/metrics_collectors"
	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/benmeehan/grid-agent/pkg/file"
	"github.com/benmeehan/grid-agent/pkg/identity"
)

type options struct {
	configPath string
	logLevel   string
	run        bool
	connect    string
	noConsole  bool
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func newLogger() zerolog.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func main() {
	var opts options
	log := newLogger()

	root := &cobra.Command{
		Use:          "grid-agent",
		Short:        "Expose the Android devices attached to this host to the device grid",
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			return runAgent(cmd.Context(), opts, changed, log)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "path to the YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level, overrides agent.log_level")
	flags.BoolVar(&opts.run, "run", false, "start the device layer on launch")
	flags.StringVar(&opts.connect, "connect", "", "connect to the control plane at host:port on launch, implies --run")
	flags.BoolVar(&opts.noConsole, "no-console", false, "run without the interactive console")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(ctx context.Context, opts options, changed map[string]bool, log zerolog.Logger) error {
	files := file.NewFileService()

	cfg, err := utils.LoadConfig(opts.configPath, files)
	if err != nil {
		log.Error().Err(err).Str("path", opts.configPath).Msg("Failed to load configuration")
		return err
	}

	levelName := cfg.Agent.LogLevel
	if changed["log-level"] || levelName == "" {
		levelName = opts.logLevel
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	log = log.Level(level)

	info := identity.NewAgentInfo(cfg.Agent.IdentityFile, files)
	if err := info.LoadOrCreate(); err != nil {
		log.Error().Err(err).Msg("Failed to load agent identity")
		return err
	}
	agentID := info.GetAgentID()
	log = log.With().Str("agent_id", agentID).Logger()
	log.Info().Str("agent_name", info.GetAgentName()).Str("version", getVersion()).Msg("Agent identity loaded")

	a := agent.New(agent.Dependencies{
		Config:   cfg,
		AgentID:  agentID,
		Bridge:   bridge.NewADB(cfg.Bridge.ADBPath, cfg.Bridge.CommandTimeout, log),
		Files:    files,
		Sessions: agent.NewSessionFactory(cfg, agentID, files, log),
		Metrics:  metrics_collectors.NewDefaultRegistry(log),
		Logger:   log,
	})
	defer a.Shutdown()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := launch(ctx, a, opts, log); err != nil {
		return err
	}

	if opts.noConsole || !isatty.IsTerminal(os.Stdin.Fd()) {
		<-ctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		return nil
	}

	c := console.New(a, agent.Commands(), agent.ErrExit, log)
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return c.Run(ctx)
}

// launch runs the commands requested by --run and --connect.
func launch(ctx context.Context, a *agent.Agent, opts options, log zerolog.Logger) error {
	if !opts.run && opts.connect == "" {
		return nil
	}

	out, err := a.ExecuteCommand(ctx, "run", nil)
	if err != nil {
		return err
	}
	log.Info().Msg(out)

	if opts.connect == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(opts.connect)
	if err != nil {
		return fmt.Errorf("invalid --connect address: %w", err)
	}
	out, err = a.ExecuteCommand(ctx, "connect", []string{host, port})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Warn().Err(err).Msg("Initial connect failed, use the connect command to retry")
		return nil
	}
	log.Info().Msg(out)
	return nil
}
