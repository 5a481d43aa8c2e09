package ledger

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
)

// rebuildParallelism - сколько пользователей пересчитывается одновременно.
const rebuildParallelism = 4

// Drift - расхождение кэша с журналом, найденное при перестройке.
type Drift struct {
	UserID  string
	Cached  int64
	Actual  int64
	Present bool // Была ли строка кэша до перестройки
}

// Rebuild пересчитывает кэш одного пользователя с нуля.
// Возвращает расхождение, если кэш отличался от журнала.
func (s *Service) Rebuild(ctx context.Context, userID string) (*Drift, error) {
	var drift *Drift
	err := s.store.Atomic(ctx, userID, func(ctx context.Context, tx db.Tx) error {
		cached, present, err := tx.CachedBalance(ctx, userID)
		if err != nil {
			return err
		}
		actual, err := s.Refresh(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !present || cached != actual {
			drift = &Drift{UserID: userID, Cached: cached, Actual: actual, Present: present}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drift, nil
}

// RebuildAll перестраивает кэш всех пользователей журнала.
// Возвращает только пользователей с расхождением; отсутствие строки кэша
// у пользователя с нулевым балансом расхождением не считается.
func (s *Service) RebuildAll(ctx context.Context) ([]Drift, error) {
	users, err := s.store.LedgerUsers(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		drifts []Drift
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildParallelism)
	for _, userID := range users {
		g.Go(func() error {
			d, err := s.Rebuild(gctx, userID)
			if err != nil {
				return err
			}
			if d == nil || (!d.Present && d.Actual == 0) {
				return nil
			}
			mu.Lock()
			drifts = append(drifts, *d)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return drifts, err
	}

	log.WithFields(log.Fields{
		"users":   len(users),
		"drifted": len(drifts),
	}).Info("Кэш балансов перестроен")
	return drifts, nil
}
