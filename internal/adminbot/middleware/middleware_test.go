package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))

	// У другого пользователя свой бакет
	assert.True(t, rl.Allow(2))
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()

	rl.Allow(1)
	rl.sweep(time.Now().Add(time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestSafeText(t *testing.T) {
	assert.Equal(t, "/login ***", SafeText("/login hunter2"))
	assert.Equal(t, "/orders", SafeText("/orders"))

	long := strings.Repeat("я", 60)
	got := SafeText(long)
	assert.Equal(t, strings.Repeat("я", 50)+"...", got)
}

func TestRecoverUpdate(t *testing.T) {
	update := telego.Update{
		UpdateID: 7,
		Message: &telego.Message{
			Text: "/login hunter2",
			Chat: telego.Chat{ID: 100},
			From: &telego.User{ID: 100},
		},
	}
	assert.NotPanics(t, func() {
		defer RecoverUpdate(update)
		panic("boom")
	})
	assert.NotPanics(t, func() {
		defer RecoverUpdate(telego.Update{UpdateID: 8})
		panic("boom")
	})
	assert.NotPanics(t, func() {
		defer RecoverUpdate(update)
	})
}
