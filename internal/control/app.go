// Package control wires the participation layer together: notification sink,
// poll engine, backend gateway, optional flow journal and receipt store, and
// the metrics endpoint.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/quangdm/partake/internal/backend"
	"github.com/quangdm/partake/internal/backend/memgateway"
	"github.com/quangdm/partake/internal/core/config"
	"github.com/quangdm/partake/internal/core/domain"
	"github.com/quangdm/partake/internal/dualread"
	"github.com/quangdm/partake/internal/infra/postgres"
	redisclient "github.com/quangdm/partake/internal/infra/redis"
	"github.com/quangdm/partake/internal/notify"
	"github.com/quangdm/partake/internal/poll"
	"github.com/quangdm/partake/internal/sale"
)

// App owns the assembled participation layer.
type App struct {
	cfg      *config.AppConfig
	round    domain.SaleRound
	fee      domain.Amount
	engine   *poll.Engine
	gateway  backend.Gateway
	sink     notify.Sink
	journal  sale.Journal
	receipts *postgres.ReceiptRepo
	redis    *redisclient.Client
	db       *postgres.DB
	metrics  *MetricsServer
	log      *slog.Logger
}

// New assembles an App from configuration. The gateway is the in-memory
// simulated backend seeded from the configured accounts; a deployment
// against a live backend swaps in its own backend.Gateway.
func New(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	round := domain.SaleRound{
		ID:                cfg.Sale.ID,
		MinPerParticipant: domain.Amount(cfg.Sale.MinParticipant),
		MaxPerParticipant: domain.Amount(cfg.Sale.MaxParticipant),
		CollectionAccount: domain.Account{Owner: cfg.Sale.CollectionOwner},
	}
	fee := domain.Amount(cfg.Sale.Fee)

	gw := memgateway.New(round, fee)
	for _, acct := range cfg.Accounts {
		gw.SetBalance(domain.Account{Owner: acct.Owner}, domain.Amount(acct.Balance))
	}

	sink := notify.NewLogSink(log)
	app := &App{
		cfg:     cfg,
		round:   round,
		fee:     fee,
		engine:  poll.NewEngine(sink, log),
		gateway: gw,
		sink:    sink,
		log:     log,
	}

	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redis = rc
		app.journal = rc
	}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		app.db = db
		app.receipts = postgres.NewReceiptRepo(db)
	}

	if cfg.Server.Port > 0 {
		app.metrics = NewMetricsServer(cfg.Server.Port)
	}

	return app, nil
}

// StartMetrics starts the metrics HTTP server, if configured.
func (a *App) StartMetrics() {
	if a.metrics == nil {
		return
	}
	go func() {
		if err := a.metrics.Start(); err != nil {
			a.log.Warn("Metrics server stopped", "error", err)
		}
	}()
}

// Gateway exposes the backend gateway, mainly for the demo and tests.
func (a *App) Gateway() backend.Gateway {
	return a.gateway
}

// Engine exposes the poll engine, for cancellation by identity token.
func (a *App) Engine() *poll.Engine {
	return a.engine
}

// Round returns the configured sale round.
func (a *App) Round() domain.SaleRound {
	return a.round
}

func (a *App) newCoordinator() (*sale.Coordinator, error) {
	return sale.New(sale.Config{
		Round:             a.round,
		Fee:               a.fee,
		Gateway:           a.gateway,
		Engine:            a.engine,
		Sink:              a.sink,
		Journal:           a.journal,
		Log:               a.log,
		Attempts:          a.cfg.Retry.MaxAttempts,
		Wait:              a.cfg.Retry.Wait,
		HighLoadThreshold: a.cfg.Retry.HighLoadThreshold,
	})
}

// Participate runs a fresh participation flow and records its receipt.
func (a *App) Participate(ctx context.Context, req sale.Request, hooks sale.Hooks) (sale.Outcome, error) {
	coord, err := a.newCoordinator()
	if err != nil {
		return sale.OutcomeAborted, err
	}
	outcome, err := coord.Initiate(ctx, req, hooks)
	a.recordReceipt(ctx, coord, req.Account, req.Amount, outcome)
	return outcome, err
}

// Restore resumes an interrupted flow from the backend's open ticket.
func (a *App) Restore(ctx context.Context, account domain.Account, priorCommitment domain.Amount, hooks sale.Hooks) (sale.Outcome, error) {
	coord, err := a.newCoordinator()
	if err != nil {
		return sale.OutcomeAborted, err
	}
	outcome, err := coord.Restore(ctx, account, priorCommitment, hooks)
	if outcome != sale.OutcomeNoOpenTicket {
		a.recordReceipt(ctx, coord, account, 0, outcome)
	}
	return outcome, err
}

// BalancePair is the result of a dual-tier balance read.
type BalancePair struct {
	Speculative      domain.Amount
	HasSpeculative   bool
	Authoritative    domain.Amount
	HasAuthoritative bool
}

// Balances reads the account balance through both consistency tiers and
// waits briefly for the authoritative tier to settle.
func (a *App) Balances(ctx context.Context, account domain.Account, settle time.Duration) (BalancePair, error) {
	var (
		mu   sync.Mutex
		pair BalancePair
	)
	done := make(chan struct{})

	err := dualread.Run(ctx, func(ctx context.Context, tier domain.Tier) (domain.Amount, error) {
		return a.gateway.Balance(ctx, account, tier)
	}, dualread.Callbacks[domain.Amount]{
		OnSuccess: func(tier domain.Tier, balance domain.Amount) {
			mu.Lock()
			if tier == domain.Authoritative {
				pair.Authoritative = balance
				pair.HasAuthoritative = true
			} else {
				pair.Speculative = balance
				pair.HasSpeculative = true
			}
			mu.Unlock()
			if tier == domain.Authoritative {
				close(done)
			}
		},
		OnFailure: func(tier domain.Tier, err error) {
			a.log.Warn("Balance read failed", "tier", tier.String(), "error", err)
			if tier == domain.Authoritative {
				close(done)
			}
		},
	}, dualread.Both)
	if err != nil {
		a.log.Warn("First balance read failed", "error", err)
	}

	select {
	case <-done:
	case <-time.After(settle):
	case <-ctx.Done():
		mu.Lock()
		out := pair
		mu.Unlock()
		return out, ctx.Err()
	}

	mu.Lock()
	out := pair
	mu.Unlock()
	return out, nil
}

// JournalEvents returns the recorded phase trail for a run, oldest first.
func (a *App) JournalEvents(ctx context.Context, runID string) ([]string, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("flow journal is not configured")
	}
	return a.redis.Events(ctx, runID)
}

func (a *App) recordReceipt(ctx context.Context, coord *sale.Coordinator, account domain.Account, amount domain.Amount, outcome sale.Outcome) {
	if a.receipts == nil {
		return
	}
	height, tooOld := coord.Summary()
	receipt := &domain.Receipt{
		RunID:      coord.RunID(),
		SaleID:     a.round.ID,
		Owner:      account.Owner,
		Amount:     amount,
		Outcome:    outcome.String(),
		Height:     height,
		TooOld:     tooOld,
		FinishedAt: time.Now().UTC(),
	}
	if err := a.receipts.Save(ctx, receipt); err != nil {
		a.log.Warn("Failed to record receipt", "run", coord.RunID(), "error", err)
	}
}

// Close releases the app's external connections.
func (a *App) Close(ctx context.Context) error {
	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			a.log.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			return err
		}
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
