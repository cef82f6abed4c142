package filters

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

type adminSet map[int64]bool

func (a adminSet) IsAdmin(id int64) bool { return a[id] }

func TestAdminFilter(t *testing.T) {
	f := NewAdminFilter(adminSet{10: true})

	private := func(from int64) *telego.Message {
		return &telego.Message{
			From: &telego.User{ID: from},
			Chat: telego.Chat{ID: from, Type: telego.ChatTypePrivate},
			Text: "/orders",
		}
	}

	assert.True(t, f.CheckAccess(private(10)))
	assert.False(t, f.CheckAccess(private(11)))
	assert.False(t, f.CheckAccess(nil))

	group := private(10)
	group.Chat = telego.Chat{ID: -100, Type: telego.ChatTypeSupergroup}
	assert.False(t, f.CheckAccess(group))

	noFrom := private(10)
	noFrom.From = nil
	assert.False(t, f.CheckAccess(noFrom))
}
