package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shestoi/paybridge/internal/repository/postgres"
)

type orderView struct {
	ID         string     `json:"id"`
	JobID      string     `json:"jobId,omitempty"`
	Amount     string     `json:"amount"`
	TipAmount  string     `json:"tipAmount"`
	Status     string     `json:"status"`
	Email      string     `json:"email"`
	ExternalID string     `json:"externalId,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect orders",
	}

	var byExternal bool
	get := &cobra.Command{
		Use:   "get [id]",
		Short: "Show an order by id or by provider external id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(repo *postgres.Repository) error {
				get := repo.GetOrder
				if byExternal {
					get = repo.GetOrderByExternalID
				}
				o, err := get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				v := orderView{
					ID:         o.ID,
					JobID:      o.JobID,
					Amount:     o.Amount.StringFixed(2),
					TipAmount:  o.TipAmount.StringFixed(2),
					Status:     string(o.Status),
					Email:      o.Email,
					ExternalID: o.ExternalID,
					UpdatedAt:  o.UpdatedAt,
				}
				if !o.ExpiresAt.IsZero() {
					v.ExpiresAt = &o.ExpiresAt
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
	get.Flags().BoolVar(&byExternal, "external", false, "treat the argument as provider external id")

	cmd.AddCommand(get)
	return cmd
}
