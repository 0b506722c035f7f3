package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/eugenetaranov/router-reset-dns/internal/observability"
)

type contextKey string

const (
	configKey     contextKey = "config"
	configFileKey contextKey = "config_file"
)

// flagBindings maps command flags onto configuration keys, so a flag given on
// the command line overrides the config file and the environment.
var flagBindings = map[string]string{
	"driver-path":    "browser.exec_path",
	"docker-runtime": "browser.container_runtime",
	"headless":       "browser.headless",
	"skip-header":    "inventory.skip_header",
	"workers":        "runner.workers",
	"report":         "report.path",
	"report-format":  "report.format",
}

// dependencies are the external resources commands create. Tests replace them.
type dependencies struct {
	newLauncher launcherFactory
	stores      storeProvider
}

func defaultDependencies() dependencies {
	return dependencies{
		newLauncher: newChromeLauncher,
		stores:      NewStoreProvider(),
	}
}

// NewRootCommand builds the command tree with production dependencies.
func NewRootCommand() *cobra.Command {
	return newRootCmd(defaultDependencies())
}

func newRootCmd(deps dependencies) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "router-reset",
		Short:         "Reset DNS servers and admin passwords on a fleet of routers through their web panels.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "router-reset"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "router-reset"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting router-reset",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()))

			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, configFileKey, v.ConfigFileUsed())
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newResetCmd(deps))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newReportCmd(deps.stores))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig reads the config file and environment into v and binds the
// flags of the executing command.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("expanding config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ROUTER_RESET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}

	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}
	if f := cmd.Flags().Lookup("debug"); f != nil && f.Changed && f.Value.String() == "true" {
		v.Set("logger.level", "debug")
	}
	return nil
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}

func getConfigFileFromContext(ctx context.Context) string {
	path, _ := ctx.Value(configFileKey).(string)
	return path
}
