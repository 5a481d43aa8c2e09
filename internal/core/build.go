package core

import (
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/achievements"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/cards"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/catalog"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/members"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// Options - параметры ядра из конфигурации.
type Options struct {
	ThresholdMaxPasses    int
	CatalogRefundOnReject bool
	CardCodeLength        int
	CardMaxUsageAttempts  int
}

// New связывает сервисы ядра поверх одного хранилища.
func New(store db.Store, notifier notify.Notifier, opts Options) *Core {
	ledgerSvc := ledger.NewService(store, notifier)
	engine := achievements.NewEngine(store, ledgerSvc, notifier, opts.ThresholdMaxPasses)
	ledgerSvc.SetEvaluator(engine)

	cardsSvc := cards.NewService(store, ledgerSvc, engine, notifier, cards.Options{
		CodeLength:       opts.CardCodeLength,
		MaxUsageAttempts: opts.CardMaxUsageAttempts,
	})

	return &Core{
		Members:      members.NewService(store),
		Ledger:       ledgerSvc,
		Cards:        cardsSvc,
		Achievements: engine,
		Catalog:      catalog.NewService(store, ledgerSvc, engine, notifier, catalog.Options{RefundOnReject: opts.CatalogRefundOnReject}),
	}
}
