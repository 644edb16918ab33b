package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/config"
	"github.com/dangerclosesec/tenantkit/internal/database"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	timeout time.Duration

	cfg    *config.Config
	logger *slog.Logger
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time a command may run")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(invitationsCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(permsyncCmd)
}

var rootCmd = &cobra.Command{
	Use:   "tenantctl",
	Short: "tenantctl administers a tenantkit installation",
	Long: `tenantctl runs database migrations, bootstraps the first super admin and
performs maintenance tasks against the database configured in the environment.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()

		level := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func openDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database, logger, database.GormLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// cliActor attributes CLI writes in the activity log.
func cliActor() audit.Actor {
	host, _ := os.Hostname()
	return audit.Actor{UserAgent: "tenantctl", IPAddress: host}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
