/*
scheduler.go - Background compliance monitor

PURPOSE:
  Periodically classifies every open contract (Compliant / Review Needed /
  Overdue) so the dashboard can show overdue contracts without recomputing
  on every page load. The latest sweep is kept in memory.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each sweep lists open contracts and classifies them in parallel with an
    errgroup bounded by Concurrency
  - A failure on one contract is logged and skipped; the sweep continues
  - The sweep result replaces the previous one atomically

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Concurrency:   Parallel classifications (default: 8)
  - Enabled:       Whether the monitor is active (default: true)

USAGE:
  monitor := NewComplianceMonitor(store, service, logger)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - handlers.go: ListCompliance endpoint
  - fees/compliance.go: ClassifyOverdue, ClassifyCompliance
*/
package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/fees"
	"github.com/warp/fee-engine/payments"
	"golang.org/x/sync/errgroup"
)

// ContractLister lists the open contracts to sweep.
type ContractLister interface {
	ListContracts(ctx context.Context) ([]billing.Contract, error)
}

// ComplianceMonitor handles the periodic compliance sweep.
type ComplianceMonitor struct {
	Contracts     ContractLister
	Service       *payments.Service
	CheckInterval time.Duration
	Concurrency   int
	Enabled       bool
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	resultMu  sync.RWMutex
	reports   []payments.ComplianceReport
	checkedAt time.Time
}

// NewComplianceMonitor creates a new monitor.
func NewComplianceMonitor(contracts ContractLister, svc *payments.Service, log zerolog.Logger) *ComplianceMonitor {
	return &ComplianceMonitor{
		Contracts:     contracts,
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Concurrency:   8,
		Enabled:       true,
		Log:           log.With().Str("component", "compliance-monitor").Logger(),
		stop:          make(chan struct{}),
	}
}

// Start begins the monitor.
func (m *ComplianceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.Log.Info().Msg("disabled, not starting")
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.wg.Add(1)

	go m.run()

	m.Log.Info().Dur("interval", m.CheckInterval).Msg("started")
}

// Stop stops the monitor and waits for an in-flight sweep.
func (m *ComplianceMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.Log.Info().Msg("stopped")
	}
}

func (m *ComplianceMonitor) run() {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.stop
		cancel()
	}()

	// Run immediately on start
	m.sweepAndLog(ctx)

	for {
		select {
		case <-m.ticker.C:
			m.sweepAndLog(ctx)
		case <-m.stop:
			return
		}
	}
}

func (m *ComplianceMonitor) sweepAndLog(ctx context.Context) {
	if err := m.RunNow(ctx); err != nil {
		m.Log.Error().Err(err).Msg("sweep failed")
	}
}

// RunNow performs one sweep synchronously and stores the result.
func (m *ComplianceMonitor) RunNow(ctx context.Context) error {
	contracts, err := m.Contracts.ListContracts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list contracts: %w", err)
	}

	results := make([]*payments.ComplianceReport, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	if m.Concurrency > 0 {
		g.SetLimit(m.Concurrency)
	}
	for i, c := range contracts {
		i, c := i, c
		g.Go(func() error {
			report, err := m.Service.Compliance(gctx, c.ClientID, c.ID, fees.ReviewSignals{})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				m.Log.Warn().Err(err).
					Str("client_id", string(c.ClientID)).
					Str("contract_id", string(c.ID)).
					Msg("compliance check failed")
				return nil
			}
			results[i] = &report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	reports := make([]payments.ComplianceReport, 0, len(results))
	overdue := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Status == fees.StatusOverdue {
			overdue++
		}
		reports = append(reports, *r)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].ClientID != reports[j].ClientID {
			return reports[i].ClientID < reports[j].ClientID
		}
		return reports[i].ContractID < reports[j].ContractID
	})

	m.resultMu.Lock()
	m.reports = reports
	m.checkedAt = m.Service.Now()
	m.resultMu.Unlock()

	m.Log.Info().Int("contracts", len(reports)).Int("overdue", overdue).Msg("sweep completed")
	return nil
}

// Latest returns the most recent sweep and when it ran. Before the first
// sweep both are zero.
func (m *ComplianceMonitor) Latest() ([]payments.ComplianceReport, time.Time) {
	m.resultMu.RLock()
	defer m.resultMu.RUnlock()
	out := make([]payments.ComplianceReport, len(m.reports))
	copy(out, m.reports)
	return out, m.checkedAt
}

// NextRunTime returns when the next scheduled sweep will occur.
func (m *ComplianceMonitor) NextRunTime() time.Time {
	m.resultMu.RLock()
	defer m.resultMu.RUnlock()
	if m.checkedAt.IsZero() {
		return m.Service.Now()
	}
	return m.checkedAt.Add(m.CheckInterval)
}
