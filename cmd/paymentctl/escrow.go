package main

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/service"
	"github.com/spf13/cobra"
)

// escrowCmd drives the lifecycle transitions that payment confirmation and the
// booking flow normally trigger, for support staff fixing a stuck escrow by hand.
func escrowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Inspect and move escrows through their lifecycle",
	}

	transitions := []struct {
		use   string
		short string
		apply func(s *service.EscrowService, ctx context.Context, id string) (*domain.Escrow, error)
	}{
		{"fund [escrow-id]", "Mark an escrow as funded", (*service.EscrowService).MarkFunded},
		{"complete [escrow-id]", "Mark the booked service as completed", (*service.EscrowService).MarkServiceCompleted},
		{"dispute [escrow-id]", "Open a dispute on an escrow", (*service.EscrowService).OpenDispute},
	}
	for _, tr := range transitions {
		cmd.AddCommand(&cobra.Command{
			Use:   tr.use,
			Short: tr.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				escrow, err := tr.apply(service.NewEscrowService(a.repo, a.logger), cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printEscrow(cmd, escrow)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [escrow-id]",
		Short: "Print an escrow and its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			escrow, err := service.NewEscrowService(a.repo, a.logger).GetEscrow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEscrow(cmd, escrow)

			entries, err := a.repo.ListAuditEntries(cmd.Context(), escrow.ID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-8s %d by %s %s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Amount, e.ActorID, e.Reason)
			}
			return nil
		},
	})

	return cmd
}

func printEscrow(cmd *cobra.Command, e *domain.Escrow) {
	closed := ""
	if e.IsTerminal() {
		closed = "  closed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-17s %d %s  booking=%s client=%s supplier=%s%s\n",
		e.ID, e.Status, e.TotalAmount, e.Currency, e.BookingID, e.ClientID, e.SupplierID, closed)
}
