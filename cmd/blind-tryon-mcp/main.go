package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ironsheep/blind-tryon-mcp/internal/config"
	"github.com/ironsheep/blind-tryon-mcp/internal/detection"
	"github.com/ironsheep/blind-tryon-mcp/internal/overlay"
	"github.com/ironsheep/blind-tryon-mcp/internal/server"
	"github.com/ironsheep/blind-tryon-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	flagEnvFile  = "env-file"
	flagLogLevel = "log-level"
	flagMaskDir  = "mask-dir"
)

func main() {
	app := &cli.App{
		Name:  server.Name,
		Usage: "MCP server for trying window blinds on room photos",
		Description: "Communicates via MCP protocol over stdin/stdout. " +
			"Configure it in your MCP client; logs go to stderr.",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  flagEnvFile,
				Usage: "load environment variables from `FILE` (defaults to ./.env if present)",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "override " + config.EnvLogLevel + " (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  flagMaskDir,
				Usage: "override " + config.EnvMaskDir,
			},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("%s %s\n", server.Name, Version)
					fmt.Printf("  Build time: %s\n", BuildTime)
					fmt.Printf("  Git commit: %s\n", GitCommit)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", server.Name, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.StringSlice(flagEnvFile)...)
	if err != nil {
		return err
	}
	if lvl := c.String(flagLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	if dir := c.String(flagMaskDir); dir != "" {
		cfg.MaskDir = dir
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("mask_dir", cfg.MaskDir))

	srv, err := build(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// Restore default signal handling so a second signal kills the
		// process if shutdown hangs.
		<-ctx.Done()
		stop()
	}()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "server error")
	}
	logger.Info("stopped")
	return nil
}

// build wires detectors, the mask store and the server from cfg.
func build(cfg config.Config, logger *zap.Logger) (*server.Server, error) {
	detectors := detection.FromConfig(cfg, http.DefaultClient, logger)
	if len(detectors) == 0 {
		logger.Warn("no window detectors configured, every photo gets the synthetic mask")
	}

	masks, err := store.NewMasks(cfg.MaskDir, logger)
	if err != nil {
		return nil, err
	}

	blend := overlay.BlendConfig{Alpha: cfg.Blend.Alpha, ShadowIntensity: cfg.Blend.Shadow}
	if err := blend.Validate(); err != nil {
		return nil, err
	}

	return server.New(server.Options{
		Cascade:  detection.NewCascade(detectors, logger),
		Ensemble: detection.NewEnsemble(detectors, cfg.EnsembleTimeout, logger),
		Masks:    masks,
		Blend:    blend,
		Version:  Version,
		Logger:   logger,
	})
}

// newLogger builds a JSON logger on stderr; stdout carries the protocol.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
