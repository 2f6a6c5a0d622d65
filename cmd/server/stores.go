package main

import (
	"context"
	"fmt"
	"log"

	"fairlaunch/internal/config"
	"fairlaunch/internal/storage"
	chstore "fairlaunch/internal/storage/clickhouse"
	"fairlaunch/internal/storage/memory"
	"fairlaunch/internal/storage/migrations"
	pgstore "fairlaunch/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	curveStateStore storage.CurveStateStore
	tradeStore      storage.TradeRecordStore
	assessmentStore storage.AssessmentStore
	graduationStore storage.GraduationStore
	eventStore      storage.TradeEventStore // nil when no analytics sink is configured
}

func memoryStores() *allStores {
	return &allStores{
		curveStateStore: memory.NewCurveStateStore(),
		tradeStore:      memory.NewTradeRecordStore(),
		assessmentStore: memory.NewAssessmentStore(),
		graduationStore: memory.NewGraduationStore(),
		eventStore:      memory.NewTradeEventStore(),
	}
}

func createStores(ctx context.Context, cfg config.Storage, logger *log.Logger) (*allStores, func(), error) {
	if cfg.Backend == config.BackendMemory {
		logger.Println("Using in-memory storage")
		return memoryStores(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	stores := &allStores{
		curveStateStore: pgstore.NewCurveStateStore(pool),
		tradeStore:      pgstore.NewTradeRecordStore(pool),
		assessmentStore: pgstore.NewAssessmentStore(pool),
		graduationStore: pgstore.NewGraduationStore(pool),
	}

	if cfg.ClickHouseDSN == "" {
		logger.Println("No ClickHouse DSN, trade analytics disabled")
		return stores, pool.Close, nil
	}

	var chConn *chstore.Conn
	if cfg.Migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	stores.eventStore = chstore.NewTradeEventStore(chConn)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}
