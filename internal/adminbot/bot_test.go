package adminbot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/config"
	"serotonyl.ru/streaming-ledger/internal/features/admin"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/commission"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
	"serotonyl.ru/streaming-ledger/internal/testutil/memstore"
)

const (
	adminID  int64 = 100
	password       = "hunter2"
)

var passwordHash string

func init() {
	var err error
	if passwordHash, err = admin.HashPassword(password); err != nil {
		panic(err)
	}
}

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{chatID: params.ChatID.ID, text: params.Text})
	return &telego.Message{}, nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

type fixture struct {
	bot    *Bot
	sender *fakeSender
	store  *memstore.Store
	svc    Services
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	ledger := balance.NewService(store.Balances, store)
	agentsSvc := agents.NewService(store.Agents, store.Accounts, ledger, store, time.UTC)
	memberships := membership.NewService(store.Memberships, ledger, store, 100)
	distributor := commission.NewService(store.Commissions, store.Accounts, agentsSvc, ledger, store)

	levels, err := agents.LoadLadder("../../config/levels.yaml")
	require.NoError(t, err)
	require.NoError(t, agentsSvc.SeedLevels(context.Background(), levels))

	cfg := &config.Config{
		AppTimezone:        "UTC",
		AdminIDs:           []int64{adminID},
		BotMaxInflight:     4,
		RateLimitPerSecond: 100,
		RateLimitBurst:     100,
	}
	svc := Services{
		Admin:   admin.NewService(store.Admin, cfg.AdminIDs, passwordHash),
		Balance: ledger,
		Orders:  orders.NewService(store.Orders, ledger, memberships, distributor, store, 48*time.Hour),
		Agents:  agentsSvc,
	}
	sender := &fakeSender{}
	b := newBot(sender, cfg, svc)
	t.Cleanup(b.rateLimiter.Close)

	return &fixture{bot: b, sender: sender, store: store, svc: svc, ctx: context.Background()}
}

func (f *fixture) say(text string) string {
	return f.bot.handleText(f.ctx, adminID, text)
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.Contains(t, f.say("/login "+password), "✅ Вы вошли")
}

func TestCommandsRequireSession(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.say("/help"), "Админ-консоль")
	assert.Equal(t, "❌ сессия истекла, авторизуйтесь заново", f.say("/orders"))
	assert.Equal(t, "❌ неверный пароль", f.say("/login nope"))

	f.login(t)
	assert.Contains(t, f.say("/orders"), "Заказов со статусом paid нет")

	assert.Equal(t, "👋 Сессия закрыта", f.say("/logout"))
	assert.Equal(t, "❌ сессия истекла, авторизуйтесь заново", f.say("/orders"))
}

func TestLoginViaDialog(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "🔐 Введите пароль администратора", f.say("/login"))
	assert.Contains(t, f.say("  "+password+"  "), "✅ Вы вошли")

	// Без состояния обычный текст игнорируется
	assert.Equal(t, "", f.say("просто текст"))
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	assert.Contains(t, f.say("/whatever"), "Неизвестная команда")
}

func TestAdjustAndBalance(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	id := f.store.Accounts.Add("viewer", nil)

	reply := f.say("/adjust " + itoa(id) + " coins +1500 компенсация")
	assert.Contains(t, reply, "+1 500 монет")
	assert.Contains(t, reply, "Баланс: 1 500 монет")

	reply = f.say("/adjust " + itoa(id) + " coins -2000")
	assert.Equal(t, "❌ недостаточно средств на счёте", reply)

	reply = f.say("/balance " + itoa(id))
	assert.Contains(t, reply, "Монеты: 1 500 монет")
	assert.Contains(t, reply, "Комиссия: 0.00 ₽")
	assert.NotContains(t, reply, "⚠️")

	assert.Equal(t, "❌ аккаунт не найден", f.say("/adjust 9999 coins 10"))
	assert.Contains(t, f.say("/adjust "+itoa(id)+" gems 10"), "неизвестный кошелёк")
	assert.Contains(t, f.say("/adjust "+itoa(id)+" coins 0"), "некорректная сумма")
}

func TestBatchAdjustNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	a := f.store.Accounts.Add("a", nil)
	b := f.store.Accounts.Add("b", nil)
	list := itoa(a) + "," + itoa(b) + "," + itoa(a)

	prompt := f.say("/batchadjust coins +50 " + list + " акция")
	assert.Contains(t, prompt, "Ответьте «да»")

	assert.Equal(t, "↩️ Пакетная корректировка отменена", f.say("нет"))
	assert.Empty(t, f.store.Balances.Entries(a, balance.WalletCoins))

	f.say("/batchadjust coins +50 " + list)
	reply := f.say("Да")
	assert.Contains(t, reply, "для 2 аккаунтов")
	assert.Len(t, f.store.Balances.Entries(a, balance.WalletCoins), 1)
	assert.Len(t, f.store.Balances.Entries(b, balance.WalletCoins), 1)

	// Подтверждение без активного диалога ничего не делает
	assert.Equal(t, "", f.say("да"))
}

func TestBatchAdjustAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	a := f.store.Accounts.Add("a", nil)

	f.say("/batchadjust coins -10 " + itoa(a) + ",9999")
	assert.Contains(t, f.say("да"), "❌")
	assert.Empty(t, f.store.Balances.Entries(a, balance.WalletCoins))
}

func TestApproveAndRejectOrders(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	buyer := f.store.Accounts.Add("buyer", nil)
	product := f.store.Orders.AddProduct(orders.Product{Kind: orders.KindCoins, Name: "500", Price: 4900, Coins: 500, Active: true})

	o, err := f.svc.Orders.Create(f.ctx, orders.CreateRequest{BuyerID: buyer, ProductID: product})
	require.NoError(t, err)
	_, err = f.svc.Orders.SubmitProof(f.ctx, o.ID, buyer, orders.Proof{URL: "https://pay/1"})
	require.NoError(t, err)

	list := f.say("/orders")
	assert.Contains(t, list, o.OrderNo)
	assert.Contains(t, list, "чек: https://pay/1")

	reply := f.say("/approve #" + itoa(o.ID))
	assert.Contains(t, reply, "одобрен")
	assert.Contains(t, reply, "Начислено: 500 монет")
	assert.Contains(t, reply, "Комиссия: нет агентов")

	assert.Equal(t, "❌ заказ уже обработан", f.say("/approve "+itoa(o.ID)))

	second, err := f.svc.Orders.Create(f.ctx, orders.CreateRequest{BuyerID: buyer, ProductID: product})
	require.NoError(t, err)
	assert.Contains(t, f.say("/reject "+itoa(second.ID)+" нет платежа"), "отклонён и удалён")
	assert.Equal(t, "❌ заказ не найден", f.say("/reject "+itoa(second.ID)))
}

func TestAgentCommands(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	id := f.store.Accounts.Add("agent", nil)
	_, err := f.svc.Agents.Apply(f.ctx, id)
	require.NoError(t, err)

	assert.Contains(t, f.say("/agents"), "Аккаунт "+itoa(id))

	reply := f.say("/agent_approve " + itoa(id))
	assert.Contains(t, reply, "одобрен")
	assert.Contains(t, reply, "Ставка: 10.00%")
	assert.Equal(t, "📭 Заявок нет", f.say("/agents"))

	assert.Contains(t, f.say("/agent_rates "+itoa(id)+" 1000 600"), "ставка 10.00%, передача 6.00%")
	assert.Equal(t, "❌ некорректная ставка комиссии", f.say("/agent_rates "+itoa(id)+" 500 600"))

	levels := f.say("/levels")
	assert.Contains(t, levels, "Платина")

	gold, err := f.svc.Agents.Levels(f.ctx)
	require.NoError(t, err)
	reply = f.say("/agent_level " + itoa(id) + " " + itoa(gold[2].ID) + " 1800 за вклад")
	assert.Contains(t, reply, "Бронза → Золото")
	p, err := f.svc.Agents.GetProfile(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1800, p.CommissionRate)

	assert.Contains(t, f.say("/agent_disable "+itoa(id)), "Агент отключён")
	assert.Equal(t, "❌ недопустимый статус агента для операции", f.say("/agent_disable "+itoa(id)))
	assert.Contains(t, f.say("/agent_enable "+itoa(id)), "Агент включён")
}

func TestHandleUpdateRepliesOnlyInPrivateAdminChat(t *testing.T) {
	f := newFixture(t)

	private := telego.Update{Message: &telego.Message{
		From: &telego.User{ID: adminID},
		Chat: telego.Chat{ID: adminID, Type: telego.ChatTypePrivate},
		Text: "/help",
	}}
	f.bot.handleUpdate(f.ctx, private)

	group := private
	group.Message = &telego.Message{
		From: &telego.User{ID: adminID},
		Chat: telego.Chat{ID: -500, Type: telego.ChatTypeSupergroup},
		Text: "/help",
	}
	f.bot.handleUpdate(f.ctx, group)

	stranger := telego.Update{Message: &telego.Message{
		From: &telego.User{ID: 7},
		Chat: telego.Chat{ID: 7, Type: telego.ChatTypePrivate},
		Text: "/help",
	}}
	f.bot.handleUpdate(f.ctx, stranger)

	msgs := f.sender.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, adminID, msgs[0].chatID)
}

func TestOrderPaidNotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	f.bot.OrderPaid(f.ctx, &orders.Order{ID: 42, OrderNo: "20260101000000123456", Kind: orders.KindMembership, Days: 30, Amount: 29900})

	msgs := f.sender.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, adminID, msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "/approve 42")
	assert.Contains(t, msgs[0].text, "подписка 30 дней")
}
