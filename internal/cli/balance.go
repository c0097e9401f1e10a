package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quangdm/partake/internal/core/domain"
)

var balanceOwner string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Read an account balance through both consistency tiers",
	Run:   runBalance,
}

func init() {
	balanceCmd.Flags().StringVar(&balanceOwner, "owner", "", "account owner")
	_ = balanceCmd.MarkFlagRequired("owner")
}

func runBalance(cmd *cobra.Command, args []string) {
	app, _, err := setup()
	if err != nil {
		os.Exit(1)
	}
	defer shutdown(app)

	pair, err := app.Balances(context.Background(), domain.Account{Owner: balanceOwner}, 2*time.Second)
	if err != nil {
		slog.Error("Balance read failed", "error", err)
		os.Exit(1)
	}
	if pair.HasSpeculative {
		slog.Info("Speculative balance", "balance", pair.Speculative.String())
	}
	if pair.HasAuthoritative {
		slog.Info("Authoritative balance", "balance", pair.Authoritative.String())
	}
}
