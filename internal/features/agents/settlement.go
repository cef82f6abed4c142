// Package agents — settlement.go закрывает прошедшие месяцы.
// Закрытие помечает месячную запись как settled и, если у уровня агента
// включён бонус, начисляет бонус от продаж месяца на кошелёк комиссий.
package agents

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// SettleMonths закрывает все открытые записи за месяцы раньше текущего.
// Каждая запись закрывается в своей транзакции: сбой одной не мешает остальным,
// а повторный запуск не начислит бонус дважды.
func (s *Service) SettleMonths(ctx context.Context) (*SettlementResult, error) {
	records, err := s.store.ListUnsettled(ctx, s.currentMonth())
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{}
	for _, rec := range records {
		bonus, settled, err := s.settleRecord(ctx, rec)
		if err != nil {
			result.Failed++
			log.WithError(err).WithFields(log.Fields{
				"account_id": rec.AccountID,
				"month":      common.FormatMonth(rec.Month),
			}).Error("Ошибка закрытия месяца агента")
			continue
		}
		if settled {
			result.Settled++
			result.Bonus += bonus
		}
	}

	log.WithFields(log.Fields{
		"settled": result.Settled,
		"bonus":   result.Bonus,
		"failed":  result.Failed,
	}).Info("Закрытие месяцев завершено")
	return result, nil
}

func (s *Service) settleRecord(ctx context.Context, rec *MonthlyRecord) (int64, bool, error) {
	var bonus int64
	var settled bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		bonus, err = s.monthBonus(ctx, rec)
		if err != nil {
			return err
		}
		settled, err = s.store.MarkSettled(ctx, rec.AccountID, rec.Month, bonus)
		if err != nil || !settled || bonus == 0 {
			return err
		}
		_, err = s.ledger.Credit(ctx, balance.Posting{
			AccountID:   rec.AccountID,
			Wallet:      balance.WalletCommission,
			Type:        balance.TypePromotion,
			Amount:      bonus,
			Description: "Бонус уровня за " + common.FormatMonth(rec.Month),
			Metadata: map[string]any{
				"kind":  "level_bonus",
				"month": common.FormatMonth(rec.Month),
				"sales": rec.SalesTotal,
			},
		})
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return bonus, settled, nil
}

// monthBonus считает бонус по текущему уровню активного агента.
func (s *Service) monthBonus(ctx context.Context, rec *MonthlyRecord) (int64, error) {
	p, err := s.store.GetProfile(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrAgentProfileNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !p.IsActive() {
		return 0, nil
	}
	level, err := s.currentLevel(ctx, p)
	if err != nil || level == nil || !level.BonusEnabled {
		return 0, err
	}
	return common.ApplyRate(rec.SalesTotal, level.BonusRate), nil
}
