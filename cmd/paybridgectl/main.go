// paybridgectl операторская утилита: миграции, работы (Job) и просмотр заказов
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var dsn string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paybridgectl",
		Short:         "PayBridge operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("PAYBRIDGE_POSTGRES_DSN"), "PostgreSQL DSN (default $PAYBRIDGE_POSTGRES_DSN)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(orderCmd())
	return rootCmd
}

func requireDSN() error {
	if dsn == "" {
		return fmt.Errorf("--dsn or PAYBRIDGE_POSTGRES_DSN is required")
	}
	return nil
}
