// Package postgres - боевая реализация db.Store поверх PostgreSQL.
// Используется пул соединений pgxpool: пул сам переподключается при обрыве
// и ограничивает число соединений.
//
// Каждая операция получает собственный таймаут (STORE_TIMEOUT).
// Atomic держит один таймаут на всю транзакцию целиком.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/config"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
)

// ledgerLockNamespace - первый ключ pg_advisory_xact_lock для журналов пользователей.
const ledgerLockNamespace int32 = 0x50545331

// NewPool создаёт новый пул соединений к PostgreSQL.
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// Store реализует db.Store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ db.Store = (*Store)(nil)

// New оборачивает готовый пул. Пул закрывается через Close.
func New(pool *pgxpool.Pool, timeout time.Duration) *Store {
	return &Store{
		queries: queries{q: pool, timeout: timeout},
		pool:    pool,
	}
}

// Atomic открывает транзакцию и, если задан userID, берёт
// транзакционную advisory-блокировку журнала пользователя.
// Блокировка снимается сама при COMMIT/ROLLBACK.
func (s *Store) Atomic(ctx context.Context, userID string, fn func(ctx context.Context, tx db.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.StoreError("begin", err)
	}
	// После Commit откат вернёт ErrTxClosed - это нормально
	defer tx.Rollback(ctx)

	if userID != "" {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock($1, hashtext($2))`, ledgerLockNamespace, userID,
		); err != nil {
			return common.StoreError("ledger lock", err)
		}
	}

	if err := fn(ctx, &pgTx{queries: queries{q: tx, timeout: s.timeout}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return common.StoreError("commit", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Store) Close() {
	s.pool.Close()
}

// pgTx - запросы внутри открытой транзакции.
type pgTx struct {
	queries
}

var _ db.Tx = (*pgTx)(nil)

// Проверка на этапе компиляции: и пул, и транзакция годятся как querier.
var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)
