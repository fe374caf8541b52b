package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type tokenInfo struct {
	name   string
	symbol string
	issued decimal.Decimal
}

// Memory is the in-process Ledger implementation.
type Memory struct {
	mu       sync.Mutex
	key      *authorityKey
	tokens   map[ID]*tokenInfo
	balances map[string]map[ID]decimal.Decimal
}

// NewMemory creates a custody ledger and its single MintAuthority. The
// authority is returned once; whoever wires the system decides who holds it.
func NewMemory() (*Memory, MintAuthority) {
	key := &authorityKey{}
	m := &Memory{
		key:      key,
		tokens:   make(map[ID]*tokenInfo),
		balances: make(map[string]map[ID]decimal.Decimal),
	}
	return m, MintAuthority{key: key}
}

func (m *Memory) authorize(auth MintAuthority) error {
	if auth.key == nil || auth.key != m.key {
		return ErrBadAuthority
	}
	return nil
}

func (m *Memory) NewToken(_ context.Context, auth MintAuthority, name, symbol string) (ID, error) {
	if err := m.authorize(auth); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ID(uuid.NewString())
	m.tokens[id] = &tokenInfo{name: name, symbol: symbol, issued: decimal.Zero}
	return id, nil
}

func (m *Memory) Mint(_ context.Context, auth MintAuthority, id ID, amount decimal.Decimal) (Bucket, error) {
	if err := m.authorize(auth); err != nil {
		return Bucket{}, err
	}
	if !amount.IsPositive() {
		return Bucket{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tokens[id]
	if !ok {
		return Bucket{}, fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
	info.issued = info.issued.Add(amount)
	return Bucket{token: id, amount: amount}, nil
}

func (m *Memory) Burn(_ context.Context, auth MintAuthority, b Bucket) error {
	if err := m.authorize(auth); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tokens[b.token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, b.token)
	}
	info.issued = info.issued.Sub(b.amount)
	return nil
}

func (m *Memory) TotalIssued(_ context.Context, id ID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tokens[id]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
	return info.issued, nil
}

func (m *Memory) Deposit(_ context.Context, holder string, b Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[b.token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, b.token)
	}
	held, ok := m.balances[holder]
	if !ok {
		held = make(map[ID]decimal.Decimal)
		m.balances[holder] = held
	}
	held[b.token] = held[b.token].Add(b.amount)
	return nil
}

func (m *Memory) Withdraw(_ context.Context, holder string, id ID, amount decimal.Decimal) (Bucket, error) {
	if !amount.IsPositive() {
		return Bucket{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance := m.balances[holder][id]
	if balance.LessThan(amount) {
		return Bucket{}, fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, balance, amount)
	}
	m.balances[holder][id] = balance.Sub(amount)
	return Bucket{token: id, amount: amount}, nil
}

func (m *Memory) BalanceOf(_ context.Context, holder string, id ID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[holder][id], nil
}
