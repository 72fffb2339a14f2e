package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/repository/postgres"
)

// withRepo открывает pool на время одной команды
func withRepo(ctx context.Context, fn func(repo *postgres.Repository) error) error {
	if err := requireDSN(); err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	return fn(postgres.NewRepository(pool))
}

type jobView struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage billable jobs",
	}

	var (
		id          string
		amount      string
		description string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a job that customers can pay for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil || !price.IsPositive() {
				return fmt.Errorf("--amount must be a positive number")
			}
			if id == "" {
				id = uuid.NewString()
			}
			job := repository.Job{
				ID:          id,
				Amount:      price.Round(2),
				Description: strings.TrimSpace(description),
				Status:      repository.JobPending,
			}
			return withRepo(cmd.Context(), func(repo *postgres.Repository) error {
				if err := repo.CreateJob(cmd.Context(), job); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), toJobView(job))
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "job id (generated when empty)")
	create.Flags().StringVar(&amount, "amount", "", "price in USD")
	create.Flags().StringVar(&description, "description", "", "shown to the customer on checkout")
	_ = create.MarkFlagRequired("amount")

	get := &cobra.Command{
		Use:   "get [id]",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(repo *postgres.Repository) error {
				job, err := repo.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), toJobView(job))
			})
		},
	}

	cmd.AddCommand(create, get)
	return cmd
}

func toJobView(j repository.Job) jobView {
	return jobView{
		ID:          j.ID,
		Amount:      j.Amount.StringFixed(2),
		Description: j.Description,
		Status:      string(j.Status),
	}
}
