// Package checkin — rewards.go считает награду за серию отметок.
package checkin

import "fmt"

// Reward возвращает награду за день серии streak (1 — первый день).
//
//	День 1: 10 монет
//	День 2: 20 монет
//	...
//	День 7+: 70 монет
func Reward(streak int) int64 {
	if streak < 1 {
		streak = 1
	}
	if streak > len(Rewards) {
		return Rewards[len(Rewards)-1]
	}
	return Rewards[streak-1]
}

// RewardDescription — описание проводки: "Ежедневная отметка, день 8".
func RewardDescription(streak int) string {
	return fmt.Sprintf("Ежедневная отметка, день %d", streak)
}
