package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/songsheets/rehearsal/cmd/metronome"
	"github.com/songsheets/rehearsal/cmd/presets"
	"github.com/songsheets/rehearsal/cmd/render"
	"github.com/songsheets/rehearsal/cmd/serve"
	"github.com/songsheets/rehearsal/cmd/tuner"
	"github.com/songsheets/rehearsal/cmd/version"
	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "rehearsal",
		Short:         "Metronome and tuner for worship team rehearsal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	presetsCmd := presets.Command()
	versionCmd := version.Command()
	subcommands := []*cobra.Command{
		metronome.Command(settings),
		tuner.Command(settings),
		render.Command(settings),
		serve.Command(settings),
		presetsCmd,
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for commands that print static data
		if cmd.Name() == presetsCmd.Name() || cmd.Name() == versionCmd.Name() {
			return nil
		}
		if err := bindCommandFlags(cmd); err != nil {
			return err
		}
		return initialize(settings, configFile)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	}

	return rootCmd
}

// initialize loads settings, with command-line flags taking precedence, and
// installs the process logger.
func initialize(settings *conf.Settings, configFile string) error {
	loaded, err := conf.Load(viper.GetViper(), configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	level := settings.Log.Level
	if settings.Debug {
		level = "debug"
	}
	logCfg := logging.Config{
		Level: level,
		JSON:  settings.Log.JSON,
	}
	if settings.Log.File.Enabled {
		logCfg.FilePath = settings.Log.File.Path
		logCfg.MaxSizeMB = settings.Log.File.MaxSize
		logCfg.MaxBackups = settings.Log.File.MaxBackups
		logCfg.MaxAgeDays = settings.Log.File.MaxAge
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		logging.ForService("conf").Info("loaded configuration", "file", used)
	}
	return nil
}

// bindCommandFlags binds the running command's flags to the viper keys
// listed in its annotations. Flags that several commands share are bound
// for the running command only.
func bindCommandFlags(cmd *cobra.Command) error {
	for name, key := range cmd.Annotations {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/rehearsal, /etc/rehearsal)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("backend", "malgo", "Audio backend: malgo or offline")
	rootCmd.PersistentFlags().Int("sample-rate", 44100, "Audio sample rate in Hz")

	for flag, key := range map[string]string{
		"debug":       "debug",
		"log-level":   "log.level",
		"backend":     "audio.backend",
		"sample-rate": "audio.samplerate",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
