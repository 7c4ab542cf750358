package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tradecore/internal/config"
	"tradecore/internal/repository"
	"tradecore/pkg/crypto"
	"tradecore/pkg/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd корневая команда: без подкоманды запускает сервер
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tradecore",
		Short: "Alert routing, fill simulation and strategy governance server",
		Long: `tradecore receives normalized trading alerts, routes them to broker sandboxes
or the internal fill simulator, tracks per-strategy performance in fixed-size
trade sets and enforces funded-account risk limits.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newHashTokenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create database tables (DB_DRIVER=postgres|sqlite)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := initLogger(cfg)
			defer logger.Sync()

			if !cfg.Database.Persistent() {
				return fmt.Errorf("DB_DRIVER=%s has nothing to migrate", cfg.Database.Driver)
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("database migrated",
				utils.String("driver", cfg.Database.Driver),
				utils.String("dsn", cfg.Database.DSNWithoutPassword()))
			return nil
		},
	}
}

// newHashTokenCmd печатает bcrypt-хеш токена для API_TOKEN_HASH.
// Токен читается из stdin, чтобы не попадать в историю shell.
func newHashTokenCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-token",
		Short: "Read an API token from stdin and print its bcrypt hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read token: %w", err)
			}
			hash, err := crypto.HashToken(strings.TrimSpace(line), cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", crypto.DefaultCost, "bcrypt cost")
	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := initLogger(cfg)
	defer logger.Sync()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", utils.Err(err))
		return err
	}
	return app.Run(ctx)
}

func initLogger(cfg *config.Config) *utils.Logger {
	return utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
}

func openDatabase(ctx context.Context, cfg *config.Config) (*repository.DB, error) {
	return repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), repository.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}
