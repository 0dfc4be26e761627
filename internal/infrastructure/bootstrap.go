package infrastructure

import (
	"context"
	"log/slog"

	"github.com/piukhq/vela-sub000/internal/client"
	"github.com/piukhq/vela-sub000/internal/config"
	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/repository"
	"github.com/piukhq/vela-sub000/internal/service"
	transportHTTP "github.com/piukhq/vela-sub000/internal/transport/http"
	transportNATS "github.com/piukhq/vela-sub000/internal/transport/nats"
	"github.com/piukhq/vela-sub000/internal/taskstore"
	"github.com/piukhq/vela-sub000/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.Default()

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	// ── Data access and outbound clients ──────────────────────────────────
	campaigns := repository.NewCampaignStore(db)
	tasks := taskstore.New(db)
	bus := transportNATS.NewBus(nc)

	ledger := client.NewLedger(cfg.LedgerURL, cfg.ClientTimeout)
	rewards := client.NewRewards(cfg.RewardsURL, cfg.ClientTimeout)
	mirror := client.NewMirror(cfg.MirrorURL, cfg.ClientTimeout)

	// ── Services ──────────────────────────────────────────────────────────
	transactions := service.NewTransactionService(campaigns, tasks, bus, logger)
	statuses := service.NewStatusService(campaigns, tasks, mirror, bus, logger)
	saga := service.NewAdjustmentSaga(campaigns, tasks, ledger, rewards, logger)
	housekeeping := service.NewHousekeepingHandler(tasks, ledger, rewards, logger)

	handlers := map[string]service.TaskHandler{
		model.TaskRewardAdjustment:     saga,
		model.TaskCreateBalances:       housekeeping,
		model.TaskDeleteBalances:       housekeeping,
		model.TaskCancelRewards:        housekeeping,
		model.TaskConvertPendingReward: housekeeping,
		model.TaskDeletePendingReward:  housekeeping,
	}

	// ── Servers ───────────────────────────────────────────────────────────
	locker := worker.NewRedisLocker(rdb, logger)
	servers := []Server{
		worker.NewTaskWorker(tasks, locker, handlers, nc, logger, cfg.MaxTaskAttempts, cfg.RetryBackoff),
		worker.NewRequeuer(tasks, bus, logger, cfg.RequeueInterval),
		transportHTTP.NewServer(cfg.ApiAddr(), transactions, statuses, logger),
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
