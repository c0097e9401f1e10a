package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quangdm/partake/internal/core/domain"
	"github.com/quangdm/partake/internal/sale"
)

var (
	restoreOwner string
	restorePrior uint64
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Resume an interrupted participation from the backend's open ticket",
	Run:   runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreOwner, "owner", "", "participant account owner")
	restoreCmd.Flags().Uint64Var(&restorePrior, "prior", 0, "amount already accepted in earlier flows")
	_ = restoreCmd.MarkFlagRequired("owner")
}

func runRestore(cmd *cobra.Command, args []string) {
	app, _, err := setup()
	if err != nil {
		os.Exit(1)
	}
	defer shutdown(app)

	account := domain.Account{Owner: restoreOwner}
	outcome, err := app.Restore(context.Background(), account, domain.Amount(restorePrior), progressHooks())
	if err != nil {
		slog.Error("Restore aborted", "outcome", outcome.String(), "error", err)
		os.Exit(1)
	}
	if outcome == sale.OutcomeNoOpenTicket {
		slog.Info("No open ticket, nothing to resume")
		return
	}
	slog.Info("Restore finished", "outcome", outcome.String())
}
