// Package commission — комиссионный движок: распределение комиссии с оплаченного
// заказа по цепочке агентов (до трёх уровней).
//
// split.go содержит чистый расчёт долей без обращения к БД.
package commission

import "serotonyl.ru/streaming-ledger/internal/common"

// Node — звено цепочки агентов, начиная с прямого реферера покупателя.
type Node struct {
	AccountID      int64
	Active         bool
	CommissionRate int // Собственная ставка, б.п.
	PassDownRate   int // Ставка, отданная звену ниже, б.п.
}

// Share — доля одного агента.
type Share struct {
	AccountID int64
	Depth     int   // 1 — прямой реферер
	RateBP    int   // Итоговая ставка с учётом перенесённых долей
	Amount    int64 // floor(amount * RateBP / 10000)
}

// Split делит комиссию с суммы amount по цепочке chain.
//
// Первое звено получает свою ставку целиком, следующие получают разницу между своей
// ставкой и ставкой передачи. Доля неактивного звена не пропадает, а переносится
// на ближайшее активное звено выше. Доля, которую некому передать (выше цепочки
// никого нет), не начисляется. Звенья с нулевой суммой в результат не попадают.
func Split(chain []Node, amount int64) []Share {
	var shares []Share
	carry := 0
	for i, n := range chain {
		slice := n.CommissionRate
		if i > 0 {
			slice -= n.PassDownRate
		}
		if slice < 0 {
			slice = 0
		}
		if !n.Active {
			carry += slice
			continue
		}

		rate := slice + carry
		carry = 0
		if got := common.ApplyRate(amount, rate); got > 0 {
			shares = append(shares, Share{
				AccountID: n.AccountID,
				Depth:     i + 1,
				RateBP:    rate,
				Amount:    got,
			})
		}
	}
	return shares
}

// Total возвращает сумму долей.
func Total(shares []Share) int64 {
	var total int64
	for _, s := range shares {
		total += s.Amount
	}
	return total
}
