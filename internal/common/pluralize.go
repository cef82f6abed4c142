// Package common — pluralize.go содержит функции
// для правильного склонения русских числительных.
package common

import "fmt"

// pluralize выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeCoins возвращает правильную форму слова «монета» для числа n.
//
// Примеры:
//
//	PluralizeCoins(1)  → "монета"
//	PluralizeCoins(3)  → "монеты"
//	PluralizeCoins(11) → "монет"
func PluralizeCoins(n int64) string {
	return pluralize(n, "монета", "монеты", "монет")
}

// PluralizeDays возвращает правильную форму слова «день».
func PluralizeDays(n int) string {
	return pluralize(int64(n), "день", "дня", "дней")
}

// FormatCoins форматирует количество монет: FormatCoins(150) → "150 монет".
func FormatCoins(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeCoins(n))
}

// FormatSignedCoins создаёт строку вида "+100 монет" или "-50 монет".
func FormatSignedCoins(amount int64) string {
	if amount >= 0 {
		return "+" + FormatCoins(amount)
	}
	return "-" + FormatCoins(-amount)
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
