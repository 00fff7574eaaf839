// Package app wires the domain services shared by the api and cron-worker
// binaries.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/allocation"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/markets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/config"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/locks"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/metrics"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/redis"
)

// Services is the fully wired domain layer.
type Services struct {
	Outbox       *outbox.Service
	OutboxRepo   *outbox.Repository
	Markets      *markets.Reader
	Stalls       *stalls.Machine
	Attendance   *attendance.Service
	Queue        *queue.Service
	Wallets      *wallets.Service
	Fees         *fees.Service
	Orchestrator *allocation.Orchestrator
	Metrics      *metrics.AllocationMetrics
	Locks        *locks.Keyed
}

// NewServices builds every service on one database client and one keyed
// lock table. With rdb set the market and wallet locks are also held in redis
// so several api replicas can share the database. reg may be nil to skip
// metric registration.
func NewServices(cfg *config.Config, logg *logger.Logger, client *db.Client, rdb *redis.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || client == nil {
		return nil, fmt.Errorf("config and db client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	conn := client.DB()
	keyed := locks.NewKeyed()
	if rdb != nil {
		keyed = locks.NewDistributed(locks.Options{
			Store:   rdb,
			KeyFunc: rdb.LockKey,
			TTL:     cfg.Redis.LockTTL,
		})
	}
	m := metrics.NewAllocationMetrics(reg)

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	reference := markets.NewReader(markets.NewRepository(conn))

	machine, err := stalls.NewMachine(stalls.NewRepository(conn), emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("stall machine: %w", err)
	}
	attendanceSvc, err := attendance.NewService(attendance.NewRepository(conn), client, emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("attendance service: %w", err)
	}
	queueSvc, err := queue.NewService(attendanceSvc, queue.NewVendorRepository(conn), client, logg)
	if err != nil {
		return nil, fmt.Errorf("queue service: %w", err)
	}
	walletSvc, err := wallets.NewService(wallets.NewRepository(conn), client, emitter, keyed, m, logg)
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}
	feeSvc, err := fees.NewService(
		fees.NewRepository(conn),
		walletSvc,
		reference,
		machine,
		client,
		emitter,
		fees.PolicyFromConfig(cfg.Policy),
		cfg.Policy.Location(),
		logg,
	)
	if err != nil {
		return nil, fmt.Errorf("fee service: %w", err)
	}
	orchestrator, err := allocation.NewOrchestrator(allocation.Deps{
		Sessions:               allocation.NewSessionRepository(conn),
		Stalls:                 machine,
		Attendance:             attendanceSvc,
		Queue:                  queueSvc,
		Wallets:                walletSvc,
		Fees:                   feeSvc,
		Reference:              reference,
		Tx:                     client,
		Outbox:                 emitter,
		Locks:                  keyed,
		Metrics:                m,
		Logger:                 logg,
		RequireItinerantCredit: cfg.Policy.RequireItinerantCredit,
	})
	if err != nil {
		return nil, fmt.Errorf("allocation orchestrator: %w", err)
	}
	return &Services{
		Outbox:       emitter,
		OutboxRepo:   outboxRepo,
		Markets:      reference,
		Stalls:       machine,
		Attendance:   attendanceSvc,
		Queue:        queueSvc,
		Wallets:      walletSvc,
		Fees:         feeSvc,
		Orchestrator: orchestrator,
		Locks:        keyed,
		Metrics:      m,
	}, nil
}
