package adminbot

import (
	"fmt"
	"strconv"
	"strings"

	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// CommandParser разбирает команды вида /cmd@bot arg1 arg2.
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	// /orders@LedgerBot → orders
	command := strings.ToLower(parts[0])
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}

// parseID разбирает положительный идентификатор.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный id %q", s)
	}
	return id, nil
}

// parseIDList разбирает список вида "1,2,3".
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("пустой список аккаунтов")
	}
	return ids, nil
}

// parseWallet понимает английские и русские названия кошельков.
func parseWallet(s string) (balance.Wallet, error) {
	switch strings.ToLower(s) {
	case "coins", "монеты":
		return balance.WalletCoins, nil
	case "commission", "комиссия":
		return balance.WalletCommission, nil
	}
	return "", fmt.Errorf("неизвестный кошелёк %q", s)
}

// parseSignedAmount разбирает ненулевую сумму со знаком: +100, -50, 25.
func parseSignedAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil || amount == 0 {
		return 0, fmt.Errorf("некорректная сумма %q", s)
	}
	return amount, nil
}
