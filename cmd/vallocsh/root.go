package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/valloc"
	"github.com/hupe1980/valloc/internal/fs"
)

const (
	envPrefix = "VALLOC"

	keyConfig      = "config"
	keyArenaSize   = "arena-size"
	keyLogLevel    = "log-level"
	keyMapped      = "mapped"
	keyCompression = "dump-compression"

	defaultArenaSize = 4096
)

type configuration struct {
	CfgFile     string
	ArenaSize   int
	LogLevel    string
	Mapped      bool
	Compression string
}

func (c *configuration) addConfigurationFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.CfgFile, keyConfig, "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().IntVar(&c.ArenaSize, keyArenaSize, defaultArenaSize, "arena capacity in bytes")
	cmd.PersistentFlags().StringVar(&c.LogLevel, keyLogLevel, "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&c.Mapped, keyMapped, false, "back the arena by an anonymous memory mapping")
	cmd.PersistentFlags().StringVar(&c.Compression, keyCompression, "lz4", "heap dump compression (none, lz4, zstd)")
}

func (c *configuration) logger(cmd *cobra.Command) (*valloc.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", keyLogLevel, c.LogLevel, err)
	}
	return valloc.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}

func (c *configuration) allocatorOptions(cmd *cobra.Command) ([]valloc.Option, error) {
	logger, err := c.logger(cmd)
	if err != nil {
		return nil, err
	}
	opts := []valloc.Option{valloc.WithLogger(logger)}
	if c.Mapped {
		opts = append(opts, valloc.WithMapped())
	}
	return opts, nil
}

func newRootCmd() *cobra.Command {
	config := &configuration{}
	cmd := &cobra.Command{
		Use:           "vallocsh",
		Short:         "Interactive shell for the valloc allocator",
		Long:          `vallocsh stores int32 variables in a valloc arena and lets you inspect the chunk ledger as you allocate, assign and free them.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, config); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, config)
		},
	}
	config.addConfigurationFlags(cmd)
	cmd.AddCommand(newInspectCmd(config))

	return cmd
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(cmd *cobra.Command, config *configuration) error {
	v := viper.New()

	if config.CfgFile != "" {
		if _, err := os.Stat(config.CfgFile); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(config.CfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	// Flags bind to environment variables with the VALLOC_ prefix, e.g.
	// --arena-size to VALLOC_ARENA_SIZE.
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := bindFlags(cmd, v); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if config.ArenaSize <= 0 {
		return fmt.Errorf("%s must be positive, got %d", keyArenaSize, config.ArenaSize)
	}
	return nil
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindFlagErr []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == keyConfig {
			return
		}

		// Environment variables can't have dashes in them, so bind them to their equivalent
		// keys with underscores, e.g. --arena-size to VALLOC_ARENA_SIZE
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("binding env to flag %q: %w", f.Name, err))
				return
			}
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("setting flag %q value: %w", f.Name, err))
				return
			}
		}
	})

	return errors.Join(bindFlagErr...)
}

func runShell(cmd *cobra.Command, config *configuration) error {
	opts, err := config.allocatorOptions(cmd)
	if err != nil {
		return err
	}
	compression, err := valloc.ParseCompression(config.Compression)
	if err != nil {
		return err
	}

	a, err := valloc.New(config.ArenaSize, opts...)
	if err != nil {
		return fmt.Errorf("creating allocator: %w", err)
	}
	defer a.Close()

	s := newSession(a, cmd.OutOrStdout())
	s.compression = compression
	return s.run(cmd.Context(), cmd.InOrStdin())
}

func newInspectCmd(config *configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <dump-file>",
		Short: "Print the chunk table of a heap dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fs.Open(fs.Default, args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			img, err := valloc.ReadDump(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "capacity %d, in use %d, compression %s, written %s\n",
				img.Capacity, img.InUse(), img.Compression, img.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
			printChunks(out, img.Chunks)
			return nil
		},
	}
}
