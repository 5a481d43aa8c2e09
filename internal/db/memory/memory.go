// Package memory - хранилище в памяти процесса.
// Используется для локального запуска (STORE_DRIVER=memory) и в тестах.
//
// Транзакции сериализуются одной блокировкой и работают над копией
// состояния: при ошибке копия выбрасывается, при успехе подменяет оригинал.
// Этого достаточно, чтобы соблюдать те же гарантии, что и PostgreSQL:
// атомарность и отсутствие гонок на условных обновлениях.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
)

// Store реализует db.Store в памяти.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ db.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// Atomic выполняет fn над копией состояния и применяет её при успехе.
func (s *Store) Atomic(ctx context.Context, userID string, fn func(ctx context.Context, tx db.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return common.StoreError("atomic", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Коммит после дедлайна в PostgreSQL тоже не пройдёт
		return common.StoreError("commit", err)
	}
	s.st = work
	return nil
}

// Close ничего не делает - держать нечего.
func (s *Store) Close() {}

// read выполняет функцию чтения под блокировкой.
func (s *Store) read(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return common.StoreError(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return common.StoreError(op, fn(s.st))
}

// write выполняет функцию записи вне журнала под блокировкой.
func (s *Store) write(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return common.StoreError(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return common.StoreError(op, fn(s.st))
}

// tx - транзакция над рабочей копией состояния.
type tx struct {
	*state
}

var _ db.Tx = (*tx)(nil)
