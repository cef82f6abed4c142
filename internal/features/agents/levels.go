// Package agents — levels.go содержит чистые правила лестницы уровней и ставок.
package agents

import (
	"sort"

	"serotonyl.ru/streaming-ledger/internal/common"
)

// Qualifies сообщает, выполнены ли оба требования уровня. Ноль означает «без требования».
func (l *Level) Qualifies(referrals int64, monthSales int64) bool {
	if l.RequiredReferrals > 0 && referrals < int64(l.RequiredReferrals) {
		return false
	}
	if l.RequiredSales > 0 && monthSales < l.RequiredSales {
		return false
	}
	return true
}

// EnabledLadder возвращает включённые уровни по возрастанию SortOrder.
func EnabledLadder(levels []*Level) []*Level {
	out := make([]*Level, 0, len(levels))
	for _, l := range levels {
		if l.Enabled {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// NextLevel ищет уровень для автоповышения.
// Уровни выше текущего проверяются по возрастанию, сканирование останавливается
// на первом невыполненном уровне. Возвращает самый высокий пройденный уровень
// или nil, если повышаться некуда.
func NextLevel(ladder []*Level, currentSortOrder int, referrals int64, monthSales int64) *Level {
	var target *Level
	for _, l := range EnabledLadder(ladder) {
		if l.SortOrder <= currentSortOrder {
			continue
		}
		if !l.Qualifies(referrals, monthSales) {
			break
		}
		target = l
	}
	return target
}

// LowestLevel возвращает первый включённый уровень лестницы.
func LowestLevel(ladder []*Level) (*Level, error) {
	enabled := EnabledLadder(ladder)
	if len(enabled) == 0 {
		return nil, common.ErrLevelNotFound
	}
	return enabled[0], nil
}

// ValidateRates проверяет пару ставок агента.
// Ставка передачи должна быть строго меньше собственной и неотрицательной.
func ValidateRates(commissionRate, passDownRate int) error {
	if commissionRate < 0 || commissionRate > common.BasisPoints {
		return common.ErrInvalidRate
	}
	if passDownRate < 0 || passDownRate >= commissionRate {
		return common.ErrInvalidRate
	}
	return nil
}
