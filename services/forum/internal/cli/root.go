// Package cli implements forumctl, the operator tool for the forum service.
package cli

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/acadmate/internal/platform/db"
	"github.com/example/acadmate/internal/platform/logging"
	"github.com/example/acadmate/services/forum/internal/store"
)

var (
	databaseURL string
	natsURL     string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "forumctl",
	Short:         "Operate the forum service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		_ = godotenv.Load()
		if databaseURL == "" {
			databaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if natsURL == "" {
			natsURL = strings.TrimSpace(os.Getenv("NATS_URL"))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (default $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS URL (default $NATS_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
}

// Execute runs forumctl with os.Args.
func Execute() error {
	return rootCmd.Execute()
}

// openStore is replaced in tests.
var openStore = func(ctx context.Context, dsn string) (store.ForumStore, func(), error) {
	if dsn == "" {
		return nil, nil, errors.New("database url is required (--database-url or DATABASE_URL)")
	}
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresForumStore(pool), pool.Close, nil
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := logging.New("info", "forumctl")
	if err != nil {
		return zap.NewNop()
	}
	return log
}
