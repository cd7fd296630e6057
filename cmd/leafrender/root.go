// Command leafrender checks, inspects and renders template bundles.
//
// Configuration is read, in order of precedence, from flags, LEAFRENDER_*
// environment variables and a .leafrender.yml file in the working directory:
//
//	LEAFRENDER_BUNDLE     directory holding *.leaf.yaml / *.leaf.json manifests
//	LEAFRENDER_LOG_LEVEL  debug, info, warn or error
//	LEAFRENDER_CAPACITY   output buffer size used by render --envelope
//	LEAFRENDER_SCHEMA_DIALECT  jsonschema (default) or openapi
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-leafrender/pkg/bundle"
	"github.com/goliatone/go-leafrender/pkg/components"
	"github.com/goliatone/go-leafrender/pkg/orchestrator"
	"github.com/goliatone/go-leafrender/pkg/prompt"
)

const (
	keyBundle   = "bundle"
	keyLogLevel = "log-level"
	keyCapacity = "capacity"
	keyDialect  = "schema-dialect"

	defaultCapacity = 64 * 1024
)

type app struct {
	cfg     *viper.Viper
	cfgFile string
	logger  *zap.Logger
	driver  prompt.Driver
}

func newRootCmd() *cobra.Command {
	return (&app{cfg: viper.New()}).command()
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "leafrender",
		Short:         "Compile and render component-checked templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .leafrender.yml)")
	flags.StringP(keyBundle, "b", "", "bundle directory (empty uses the embedded starter bundle)")
	flags.StringP(keyLogLevel, "l", "warn", "log level (debug, info, warn, error)")
	flags.Int(keyCapacity, defaultCapacity, "output buffer capacity in bytes for envelope output")
	_ = a.cfg.BindPFlag(keyBundle, flags.Lookup(keyBundle))
	_ = a.cfg.BindPFlag(keyLogLevel, flags.Lookup(keyLogLevel))
	flags.String(keyDialect, components.DialectJSONSchema, "component schema dialect (jsonschema, openapi)")
	_ = a.cfg.BindPFlag(keyCapacity, flags.Lookup(keyCapacity))
	_ = a.cfg.BindPFlag(keyDialect, flags.Lookup(keyDialect))

	root.AddCommand(
		newCheckCmd(a),
		newRenderCmd(a),
		newVarsCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) init() error {
	if a.cfgFile != "" {
		a.cfg.SetConfigFile(a.cfgFile)
	} else {
		a.cfg.AddConfigPath(".")
		a.cfg.SetConfigType("yaml")
		a.cfg.SetConfigName(".leafrender")
	}
	a.cfg.SetEnvPrefix("LEAFRENDER")
	a.cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.cfg.AutomaticEnv()

	if err := a.cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("leafrender: read config: %w", err)
		}
	}

	logger, err := newLogger(a.cfg.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	a.logger = logger
	if used := a.cfg.ConfigFileUsed(); used != "" {
		a.logger.Debug("using config file", zap.String("path", used))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("leafrender: log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func (a *app) capacity() int {
	if c := a.cfg.GetInt(keyCapacity); c > 0 {
		return c
	}
	return defaultCapacity
}

// load builds a runtime and applies the configured bundle to it. A bundle
// that fails to apply is still returned alongside the error.
func (a *app) load(ctx context.Context) (*orchestrator.Orchestrator, *bundle.Bundle, error) {
	validator, err := components.ValidatorFor(a.cfg.GetString(keyDialect))
	if err != nil {
		return nil, nil, err
	}
	rt, err := orchestrator.New(
		orchestrator.WithLogger(a.logger),
		orchestrator.WithSchemaValidator(validator),
	)
	if err != nil {
		return nil, nil, err
	}

	fsys := bundle.StarterFS()
	if dir := a.cfg.GetString(keyBundle); dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("leafrender: bundle: %w", err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("leafrender: bundle %s is not a directory", dir)
		}
		fsys = os.DirFS(dir)
	}

	b, err := bundle.LoadFS(fsys)
	if err != nil {
		return nil, nil, err
	}
	if err := b.Apply(ctx, rt); err != nil {
		return rt, b, err
	}
	return rt, b, nil
}
