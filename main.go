package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/quangdm/partake/internal/backend/memgateway"
	"github.com/quangdm/partake/internal/core/domain"
	"github.com/quangdm/partake/internal/notify"
	"github.com/quangdm/partake/internal/poll"
	"github.com/quangdm/partake/internal/sale"
)

// Demo: a full participation flow against the in-memory simulated backend.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	owner := os.Getenv("PARTAKE_OWNER")
	if owner == "" {
		owner = "demo-participant"
	}
	amount := uint64(10_00000000)
	if v := os.Getenv("PARTAKE_AMOUNT"); v != "" {
		amount, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("Invalid PARTAKE_AMOUNT: %v", err)
		}
	}

	round := domain.SaleRound{
		ID:                "demo-sale",
		MinPerParticipant: 1_00000000,
		MaxPerParticipant: 100_00000000,
		CollectionAccount: domain.Account{Owner: "sale-collection"},
	}
	fee := domain.Amount(10_000)

	account := domain.Account{Owner: owner}
	gw := memgateway.New(round, fee)
	gw.SetBalance(account, domain.Amount(amount)*2)
	// First notify reports "still processing" to show the retry path.
	gw.SetPendingNotifies(1)

	sink := notify.NewLogSink(slog.Default())
	engine := poll.NewEngine(sink, slog.Default())

	coord, err := sale.New(sale.Config{
		Round:   round,
		Fee:     fee,
		Gateway: gw,
		Engine:  engine,
		Sink:    sink,
	})
	if err != nil {
		log.Fatalf("Failed to build coordinator: %v", err)
	}

	hooks := sale.Hooks{
		Progress: func(phase domain.Phase) {
			slog.Info("Progress", "phase", phase.String())
		},
		Reload: func() {
			slog.Info("Reload requested")
		},
	}

	outcome, err := coord.Initiate(context.Background(), sale.Request{
		Amount:           domain.Amount(amount),
		Account:          account,
		AvailableBalance: domain.Amount(amount) * 2,
	}, hooks)
	if err != nil {
		log.Fatalf("Participation aborted: %v", err)
	}
	slog.Info("Demo finished", "outcome", outcome.String())
}
