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
	participateOwner  string
	participateAmount uint64
	priorCommitment   uint64
)

var participateCmd = &cobra.Command{
	Use:   "participate",
	Short: "Start a fresh sale participation flow",
	Run:   runParticipate,
}

func init() {
	participateCmd.Flags().StringVar(&participateOwner, "owner", "", "participant account owner")
	participateCmd.Flags().Uint64Var(&participateAmount, "amount", 0, "amount in smallest token units")
	participateCmd.Flags().Uint64Var(&priorCommitment, "prior", 0, "amount already accepted in earlier flows")
	_ = participateCmd.MarkFlagRequired("owner")
	_ = participateCmd.MarkFlagRequired("amount")
}

func runParticipate(cmd *cobra.Command, args []string) {
	app, _, err := setup()
	if err != nil {
		os.Exit(1)
	}
	defer shutdown(app)

	account := domain.Account{Owner: participateOwner}
	balance, err := app.Gateway().Balance(cmd.Context(), account, domain.Authoritative)
	if err != nil {
		slog.Error("Failed to read balance", "error", err)
		os.Exit(1)
	}

	req := sale.Request{
		Amount:           domain.Amount(participateAmount),
		Account:          account,
		AvailableBalance: balance,
		PriorCommitment:  domain.Amount(priorCommitment),
	}

	outcome, err := app.Participate(context.Background(), req, progressHooks())
	if err != nil {
		slog.Error("Participation aborted", "outcome", outcome.String(), "error", err)
		os.Exit(1)
	}
	slog.Info("Participation finished", "outcome", outcome.String())
}

func progressHooks() sale.Hooks {
	return sale.Hooks{
		Progress: func(phase domain.Phase) {
			slog.Info("Progress", "phase", phase.String())
		},
		Reload: func() {
			slog.Info("Reload requested: refresh sale state")
		},
	}
}
