package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var verbose bool
var jsonLog bool
var dryrun bool
var envFile string
var configFile string

// Execute is the entry point to running the CLI
func Execute(ctx context.Context, version string) {
	var rootCmd = &cobra.Command{
		Use:   "vcscache",
		Short: "Cache compressed repository snapshots locally and publish them to a shared index.",
		Long: "vcscache keeps compressed repository snapshots in a local cache and shares them through a remote index.\n\n" +
			"Flags not set on the command line fall back to VCSCACHE_* environment variables " +
			"(--index-url to $VCSCACHE_INDEX_URL and so on), so an environment file loaded " +
			"with --env-file can configure everything.",
		Args:              cobra.NoArgs,
		PersistentPreRunE: setup,
		Version:           version,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "write logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&dryrun, "dryrun", "n", false, "dryrun mode")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load before running")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON configuration file")
	addConfigFlags(rootCmd)

	addResolveCommand(ctx, rootCmd)
	addPackageCommand(ctx, rootCmd)
	addPublishCommand(ctx, rootCmd)
	addSnapshotCommand(ctx, rootCmd)
	addServeCommand(ctx, rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded := false
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return err
			}
			loaded = true
		}
	}
	if err := bindFlagEnvironment(cmd.Flags()); err != nil {
		return err
	}

	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	switch {
	case jsonLog:
		log.SetFormatter(&log.JSONFormatter{})
	case !colorable(os.Stderr):
		log.SetFormatter(&log.TextFormatter{DisableColors: true})
	}
	if loaded {
		log.Debugf("Loaded environment from %s", envFile)
	}
	return nil
}

// bindFlagEnvironment fills every flag not set on the command line from its
// VCSCACHE_* environment variable.
func bindFlagEnvironment(flags *pflag.FlagSet) error {
	var retErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || retErr != nil {
			return
		}
		key := "VCSCACHE_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		value, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if err := f.Value.Set(value); err != nil {
			retErr = errors.WithMessagef(err, "unable to apply %s to --%s", key, f.Name)
		}
	})
	return retErr
}

func colorable(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}

	// https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return true
}
