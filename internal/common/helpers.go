// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование денег и ставок, русская плюрализация, работа с календарём.
package common

import (
	"fmt"
	"time"
)

// BasisPoints — 10000 базисных пунктов = 100%.
const BasisPoints = 10000

// ApplyRate считает долю суммы по ставке в базисных пунктах.
// Округление вниз (усечение): сумма долей никогда не превышает номинал.
//
// Пример: ApplyRate(10000, 1000) → 1000 (10% от 100.00)
func ApplyRate(amount int64, rateBP int) int64 {
	if amount <= 0 || rateBP <= 0 {
		return 0
	}
	return amount * int64(rateBP) / BasisPoints
}

// FormatMoney форматирует сумму в минимальных единицах (копейках) как "1 234.56".
func FormatMoney(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s.%02d", sign, FormatNumber(amount/100), amount%100)
}

// FormatRate форматирует ставку в базисных пунктах как процент.
// Пример: FormatRate(650) → "6.50%"
func FormatRate(rateBP int) string {
	return fmt.Sprintf("%d.%02d%%", rateBP/100, rateBP%100)
}

// MonthStart возвращает первое число месяца (00:00) в часовом поясе loc.
// Помесячные записи агентов адресуются этим значением.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// DayStart возвращает начало календарного дня в часовом поясе loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}

// FormatMonth форматирует месяц как "2026-10".
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}
