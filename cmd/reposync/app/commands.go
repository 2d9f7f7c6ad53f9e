// Package app provides the entry point for the reposync CLI.
package app

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qiao-925/reposync/internal/app"
	"github.com/qiao-925/reposync/internal/config"
	"github.com/qiao-925/reposync/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "reposync",
	DisableAutoGenTag: true,
	Short:             "Keep a grouped local mirror of remote repositories synchronized",
	Long: `reposync reconciles a declared grouping document against the local mirror:
missing repositories are cloned, existing ones are refreshed, repositories no
longer present upstream are pruned, and a reconciliation report is produced.

One unconditional run, no subcommands. Individual repository failures are
reported, not fatal; only environment setup failures exit non-zero.`,
	RunE:          runSync,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// NewRootCmd creates the root command for reposync.
func NewRootCmd() *cobra.Command {
	rootCmd.Flags().String("config", "", "Path to the grouping document (default REPOS.md)")
	rootCmd.Flags().String("root", "", "Mirror root directory (repositories live under <root>/repos)")
	rootCmd.Flags().Int("workers", 0, "Maximum concurrent workers per wave")
	rootCmd.Flags().String("settings", "", "Optional YAML settings file")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")

	for _, name := range []string{"config", "root", "workers", "settings", "debug"} {
		if err := viper.BindPFlag(name, rootCmd.Flags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	// REPOSYNC_TOKEN, REPOSYNC_OWNER, and friends.
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	return rootCmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("debug") {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		slog.SetDefault(slog.New(handler))
	}

	info := versions.GetVersionInfo()
	slog.Debug("reposync",
		"version", info.Version,
		"commit", info.Commit,
		"built", info.BuildDate,
		"go", info.GoVersion,
		"platform", info.Platform)

	opts := []config.Option{
		config.WithCatalogPath(viper.GetString("config")),
		config.WithRoot(viper.GetString("root")),
		config.WithWorkers(viper.GetInt("workers")),
		config.WithOwner(viper.GetString("owner")),
		config.WithToken(viper.GetString("token")),
	}
	if settings := viper.GetString("settings"); settings != "" {
		opts = append([]config.Option{config.WithSettingsPath(settings)}, opts...)
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	return app.New(cfg).Run(cmd.Context())
}
