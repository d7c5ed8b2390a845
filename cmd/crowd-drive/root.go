package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/banshee-data/crowd-drive/internal/config"
	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/monitoring"
	"github.com/banshee-data/crowd-drive/internal/version"
)

// envPrefix namespaces environment overrides, e.g. CROWDDRIVE_LOG_LEVEL.
const envPrefix = "CROWDDRIVE"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	root := &cobra.Command{
		Use:           "crowd-drive",
		Short:         "Crowd-aware vehicle execution controller",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initLogging(v, cmd.ErrOrStderr())
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.String("config", "", "tuning config JSON file (built-in defaults when empty)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "console", "console log format: console or json")
	pf.String("log-file", "", "also write JSON logs to this rotated file")
	mustBind(v, pf, map[string]string{
		"config":     "config",
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	})

	root.AddCommand(
		newRunCmd(v),
		newSimCmd(v),
		newMigrateCmd(v),
		newVersionCmd(),
	)
	return root
}

// mustBind binds viper keys to flags. A missing flag is a programming
// error.
func mustBind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind %s: %v", name, err))
		}
	}
}

func initLogging(v *viper.Viper, w io.Writer) error {
	var lc monitoring.LogConfig
	if err := v.UnmarshalKey("log", &lc); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	lc.Name = "crowd-drive"
	monitoring.Init(lc, zapcore.AddSync(w))
	monitoring.L().Debug("logging initialised", zap.String("level", lc.Level), zap.String("version", version.Version))
	return nil
}

// loadConfig reads the tuning file named by the config key and derives the
// controller config from it.
func loadConfig(v *viper.Viper) (*config.TuningConfig, control.Config, error) {
	tuning := config.EmptyTuningConfig()
	if p := v.GetString("config"); p != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(p); err != nil {
			return nil, control.Config{}, err
		}
	}
	cfg, err := control.ConfigFromTuning(tuning)
	if err != nil {
		return nil, control.Config{}, err
	}
	return tuning, cfg, nil
}
