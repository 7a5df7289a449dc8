// Package store provides in-memory payments.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/payments"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	payments   map[billing.PaymentID]payments.Payment
	byContract map[billing.ContractID][]billing.PaymentID
}

func NewMemory() *Memory {
	return &Memory{
		payments:   make(map[billing.PaymentID]payments.Payment),
		byContract: make(map[billing.ContractID][]billing.PaymentID),
	}
}

func (m *Memory) Create(_ context.Context, p payments.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(p)
}

func (m *Memory) Update(_ context.Context, p payments.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(p)
}

func (m *Memory) Get(_ context.Context, id billing.PaymentID) (payments.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) List(_ context.Context, contractID billing.ContractID) ([]payments.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(contractID), nil
}

func (m *Memory) createLocked(p payments.Payment) error {
	if _, ok := m.payments[p.ID]; ok {
		return fmt.Errorf("%w: %s", billing.ErrDuplicatePayment, p.ID)
	}
	m.payments[p.ID] = p
	m.byContract[p.ContractID] = append(m.byContract[p.ContractID], p.ID)
	return nil
}

func (m *Memory) updateLocked(p payments.Payment) error {
	old, ok := m.payments[p.ID]
	if !ok {
		return fmt.Errorf("payment %s: %w", p.ID, billing.ErrNotFound)
	}
	if old.ContractID != p.ContractID {
		return fmt.Errorf("%w: payment %s cannot move to contract %s", billing.ErrInvalidPayment, p.ID, p.ContractID)
	}
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) getLocked(id billing.PaymentID) (payments.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return payments.Payment{}, fmt.Errorf("payment %s: %w", id, billing.ErrNotFound)
	}
	return p, nil
}

func (m *Memory) listLocked(contractID billing.ContractID) []payments.Payment {
	ids := m.byContract[contractID]
	result := make([]payments.Payment, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.payments[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].ReceivedDate.Equal(result[j].ReceivedDate) {
			return result[i].ReceivedDate.Before(result[j].ReceivedDate)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(payments.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	payments   map[billing.PaymentID]payments.Payment
	byContract map[billing.ContractID][]billing.PaymentID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	ps := make(map[billing.PaymentID]payments.Payment, len(tm.payments))
	for k, v := range tm.payments {
		ps[k] = v
	}
	idx := make(map[billing.ContractID][]billing.PaymentID, len(tm.byContract))
	for k, v := range tm.byContract {
		idx[k] = append([]billing.PaymentID{}, v...)
	}
	return memorySnapshot{payments: ps, byContract: idx}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.payments = s.payments
	tm.byContract = s.byContract
}

// txMemoryView runs under the parent's write lock held by WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Create(_ context.Context, p payments.Payment) error {
	return tv.parent.createLocked(p)
}

func (tv *txMemoryView) Update(_ context.Context, p payments.Payment) error {
	return tv.parent.updateLocked(p)
}

func (tv *txMemoryView) Get(_ context.Context, id billing.PaymentID) (payments.Payment, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) List(_ context.Context, contractID billing.ContractID) ([]payments.Payment, error) {
	return tv.parent.listLocked(contractID), nil
}

var (
	_ payments.TxStore = (*TxMemory)(nil)
	_ payments.Store   = (*txMemoryView)(nil)
)
