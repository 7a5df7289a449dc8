/*
Package sqlite provides a SQLite-backed implementation of the payment store
and the contract, period and AUM providers.

PURPOSE:
  Implements the interfaces the payment service consumes using SQLite:

    payments.TxStore:          Payment persistence with atomic replace
    payments.ContractProvider: Contract lookup with the ownership check
    payments.PeriodProvider:   Billable periods bounded by contract start
    payments.AUMProvider:      Latest known assets under management

  The store holds no fee rules. Expected fees are never written: a payment
  row has no expected-fee column.

KEY TABLES:
  clients:   Client records
  contracts: Fee terms, native frequency, optional contract-level AUM
  payments:  Payment records with their applied period range and status

SOFT DELETE:
  Payments are never removed. Delete is an UPDATE of status to 'deleted'.

CONNECTIONS:
  The handle is limited to one open connection. SQLite allows a single
  writer anyway, and ":memory:" databases are per connection. Inside WithTx
  only the transaction store may be used.

MIGRATION:
  Versioned migrations are embedded and applied on New() with
  golang-migrate (see migrate.go).

USAGE:
  store, err := sqlite.New("./data/fees.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := payments.NewService(store, store)

SEE ALSO:
  - payments/store.go: Interface definitions
  - payments/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/payments"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

// Store implements the payment store and providers using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now is the clock used for available periods. Defaults to time.Now.
	Now func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, Now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// =============================================================================
// CLIENTS
// =============================================================================

// Client is a stored client record.
type Client struct {
	ID   billing.ClientID
	Name string
}

// SaveClient inserts or renames a client.
func (s *Store) SaveClient(ctx context.Context, c Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, c.ID, c.Name, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient returns a client by ID.
func (s *Store) GetClient(ctx context.Context, id billing.ClientID) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Client
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM clients WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, fmt.Errorf("client %s: %w", id, billing.ErrNotFound)
	}
	if err != nil {
		return Client{}, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// NoProvider groups clients without an open contract naming a provider.
const NoProvider = "No Provider"

// ProviderGroup is the set of clients served by one provider.
type ProviderGroup struct {
	Provider string
	Clients  []Client
}

// ClientsByProvider groups clients by the providers on their open contracts,
// providers in name order with NoProvider last. A client with open contracts
// at several providers appears under each of them.
func (s *Store) ClientsByProvider(ctx context.Context) ([]ProviderGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT cl.id, cl.name, COALESCE(ct.provider, '')
		FROM clients cl
		LEFT JOIN contracts ct ON ct.client_id = cl.id AND ct.valid_to IS NULL
		ORDER BY cl.name, cl.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients by provider: %w", err)
	}
	defer rows.Close()

	type row struct {
		client   Client
		provider string
	}
	var found []row
	named := make(map[billing.ClientID]bool)
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.client.ID, &r.client.Name, &r.provider); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		if r.provider != "" {
			named[r.client.ID] = true
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byProvider := make(map[string][]Client)
	var order []string
	for _, r := range found {
		provider := r.provider
		if provider == "" {
			if named[r.client.ID] {
				continue
			}
			provider = NoProvider
		}
		if _, ok := byProvider[provider]; !ok {
			order = append(order, provider)
		}
		byProvider[provider] = append(byProvider[provider], r.client)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i] == NoProvider || order[j] == NoProvider {
			return order[i] != NoProvider
		}
		return order[i] < order[j]
	})
	groups := make([]ProviderGroup, 0, len(order))
	for _, p := range order {
		groups = append(groups, ProviderGroup{Provider: p, Clients: byProvider[p]})
	}
	return groups, nil
}

// =============================================================================
// CONTRACTS (payments.ContractProvider)
// =============================================================================

const contractColumns = `
	id, client_id, contract_number, provider, start_date, fee_type, fee_value,
	payment_frequency, num_people, aum
`

// SaveContract validates and upserts a contract. The client must exist.
//
// An existing contract keeps its owner: saving it under another client
// returns *billing.OwnershipMismatchError. Its fee terms and frequency are
// fixed for the life of the contract; a change returns ErrTermsChanged and
// must go through ReviseContract.
func (s *Store) SaveContract(ctx context.Context, c billing.Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getContract(ctx, tx, c.ID)
		switch {
		case errors.Is(err, billing.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := checkSameVersion(existing, c); err != nil {
				return err
			}
		}
		return upsertContract(ctx, tx, c)
	})
}

// ReviseContract ends contract oldID at effective and saves next as its
// successor. Payments stay attached to the version they were made under.
// next must belong to the same client and use a new ID.
func (s *Store) ReviseContract(ctx context.Context, clientID billing.ClientID, oldID billing.ContractID, next billing.Contract, effective time.Time) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if next.ClientID != clientID {
		return &billing.FieldError{Field: "client_id", Message: "must match the revised contract", Err: billing.ErrInvalidContract}
	}
	if next.ID == oldID {
		return &billing.FieldError{Field: "id", Message: "a revision needs a new contract id", Err: billing.ErrInvalidContract}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		old, err := getContract(ctx, tx, oldID)
		if err != nil {
			return err
		}
		if err := old.CheckOwnership(clientID); err != nil {
			return err
		}
		if _, err := getContract(ctx, tx, next.ID); err == nil {
			return fmt.Errorf("%w: contract %s already exists", billing.ErrInvalidContract, next.ID)
		} else if !errors.Is(err, billing.ErrNotFound) {
			return err
		}
		if err := endContract(ctx, tx, oldID, effective); err != nil {
			return err
		}
		return upsertContract(ctx, tx, next)
	})
}

// EndContract closes a contract so it no longer appears in the open
// contract lists. Its payment history stays readable.
func (s *Store) EndContract(ctx context.Context, id billing.ContractID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return endContract(ctx, s.db, id, at)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// checkSameVersion rejects a save that would move a contract to another
// client or change what its payments were billed against. A stored contract
// without terms may have them filled in.
func checkSameVersion(existing, c billing.Contract) error {
	if existing.ClientID != c.ClientID {
		return &billing.OwnershipMismatchError{ContractID: c.ID, ClientID: c.ClientID, OwnerID: existing.ClientID}
	}
	if existing.Terms == nil {
		return nil
	}
	if existing.Frequency != c.Frequency ||
		existing.Terms.Structure() != c.Terms.Structure() ||
		!existing.Terms.Value().Equal(c.Terms.Value()) {
		return fmt.Errorf("%w: contract %s", billing.ErrTermsChanged, c.ID)
	}
	return nil
}

func upsertContract(ctx context.Context, db querier, c billing.Contract) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := db.ExecContext(ctx, `
		INSERT INTO contracts
		(id, client_id, contract_number, provider, start_date, fee_type, fee_value,
		 payment_frequency, num_people, aum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contract_number = excluded.contract_number,
			provider = excluded.provider,
			start_date = excluded.start_date,
			fee_type = excluded.fee_type,
			fee_value = excluded.fee_value,
			num_people = excluded.num_people,
			aum = excluded.aum,
			updated_at = excluded.updated_at
	`,
		c.ID, c.ClientID, nullString(c.Number), nullString(c.Provider),
		nullDate(c.StartDate), string(c.Terms.Structure()), c.Terms.Value().String(),
		string(c.Frequency), c.NumPeople, nullDecimal(c.AUM), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

func endContract(ctx context.Context, db querier, id billing.ContractID, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE contracts SET valid_to = ?, updated_at = ? WHERE id = ? AND valid_to IS NULL`,
		at.Format(dateLayout), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to end contract: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contract %s (or an open version of it): %w", id, billing.ErrNotFound)
	}
	return nil
}

func getContract(ctx context.Context, db querier, id billing.ContractID) (billing.Contract, error) {
	row := db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Contract{}, fmt.Errorf("contract %s: %w", id, billing.ErrNotFound)
	}
	return c, err
}

// GetContract returns a contract by ID without an ownership check.
func (s *Store) GetContract(ctx context.Context, id billing.ContractID) (billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getContract(ctx, s.db, id)
}

// Contract returns the contract after checking that it belongs to clientID.
func (s *Store) Contract(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (billing.Contract, error) {
	c, err := s.GetContract(ctx, contractID)
	if err != nil {
		return billing.Contract{}, err
	}
	if err := c.CheckOwnership(clientID); err != nil {
		return billing.Contract{}, err
	}
	return c, nil
}

// ListContracts returns every open contract (no valid_to).
func (s *Store) ListContracts(ctx context.Context) ([]billing.Contract, error) {
	return s.queryContracts(ctx, `SELECT `+contractColumns+` FROM contracts WHERE valid_to IS NULL ORDER BY client_id, id`)
}

// ListContractsByClient returns a client's open contracts, or all of its
// contracts when includeEnded is set.
func (s *Store) ListContractsByClient(ctx context.Context, clientID billing.ClientID, includeEnded bool) ([]billing.Contract, error) {
	if includeEnded {
		return s.queryContracts(ctx, `SELECT `+contractColumns+` FROM contracts WHERE client_id = ? ORDER BY id`, clientID)
	}
	return s.queryContracts(ctx, `SELECT `+contractColumns+` FROM contracts WHERE client_id = ? AND valid_to IS NULL ORDER BY id`, clientID)
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []billing.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanContract maps a row to a contract. A row without fee terms yields a
// contract with nil Terms; the fee rules treat that as missing rate data.
func scanContract(row scanner) (billing.Contract, error) {
	var (
		c         billing.Contract
		number    sql.NullString
		provider  sql.NullString
		startDate sql.NullString
		feeType   sql.NullString
		feeValue  sql.NullString
		frequency string
		aum       sql.NullString
	)
	err := row.Scan(&c.ID, &c.ClientID, &number, &provider, &startDate,
		&feeType, &feeValue, &frequency, &c.NumPeople, &aum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan contract: %w", err)
	}

	c.Number = number.String
	c.Provider = provider.String
	c.Frequency = billing.Frequency(frequency)
	if startDate.Valid && startDate.String != "" {
		c.StartDate, err = time.Parse(dateLayout, startDate.String)
		if err != nil {
			return c, fmt.Errorf("contract %s: invalid start_date %q: %w", c.ID, startDate.String, err)
		}
	}
	if feeType.Valid && feeValue.Valid {
		if v, err := decimal.NewFromString(feeValue.String); err == nil {
			c.Terms, _ = billing.NewFeeTerms(feeType.String, v)
		}
	}
	c.AUM = parseNullDecimal(aum)
	return c, nil
}

// =============================================================================
// PERIODS & AUM (payments.PeriodProvider, payments.AUMProvider)
// =============================================================================

// AvailablePeriods lists billable periods from the contract start through
// the previous period, newest first.
func (s *Store) AvailablePeriods(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (payments.Periods, error) {
	c, err := s.Contract(ctx, clientID, contractID)
	if err != nil {
		return payments.Periods{}, err
	}
	kind := c.PeriodKind()
	return payments.Periods{
		Kind:    kind,
		Periods: billing.AvailablePeriods(c.StartDate, kind, s.now()),
	}, nil
}

// LatestAUM returns the total assets recorded with the most recent active
// payment, falling back to the contract-level figure. Nil when neither exists.
func (s *Store) LatestAUM(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (*decimal.Decimal, error) {
	c, err := s.Contract(ctx, clientID, contractID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var assets sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT total_assets FROM payments
		WHERE contract_id = ? AND status = ? AND total_assets IS NOT NULL
		ORDER BY received_date DESC, created_at DESC
		LIMIT 1
	`, contractID, payments.StatusActive).Scan(&assets)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.AUM, nil
	case err != nil:
		return nil, fmt.Errorf("failed to query latest AUM: %w", err)
	}
	if v := parseNullDecimal(assets); v != nil {
		return v, nil
	}
	return c.AUM, nil
}

// =============================================================================
// PAYMENT STORE (payments.Store interface)
// =============================================================================

const paymentColumns = `
	id, client_id, contract_id, received_date, actual_fee, total_assets, method, notes,
	period_kind, start_index, start_year, end_index, end_year, status, created_at, updated_at
`

// Create persists a new payment.
func (s *Store) Create(ctx context.Context, p payments.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayment(ctx, s.db, p)
}

// Update overwrites an existing payment.
func (s *Store) Update(ctx context.Context, p payments.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePayment(ctx, s.db, p)
}

// Get returns a payment by ID.
func (s *Store) Get(ctx context.Context, id billing.PaymentID) (payments.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}

// List returns every payment for a contract ordered by received date.
func (s *Store) List(ctx context.Context, contractID billing.ContractID) ([]payments.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayments(ctx, s.db, contractID)
}

func createPayment(ctx context.Context, db querier, p payments.Payment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ClientID, p.ContractID,
		p.ReceivedDate.Format(dateLayout), p.ActualFee.String(), nullDecimal(p.TotalAssets),
		nullString(p.Method), nullString(p.Notes),
		string(p.Start.Kind), p.Start.Index, p.Start.Year, p.End.Index, p.End.Year,
		string(p.Status), p.CreatedAt.UTC().Format(timeLayout), p.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", billing.ErrDuplicatePayment, p.ID)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// updatePayment rewrites the mutable columns. Client, contract and periods
// are fixed once a payment exists.
func updatePayment(ctx context.Context, db querier, p payments.Payment) error {
	res, err := db.ExecContext(ctx, `
		UPDATE payments SET
			received_date = ?, actual_fee = ?, total_assets = ?, method = ?, notes = ?,
			status = ?, updated_at = ?
		WHERE id = ?
	`,
		p.ReceivedDate.Format(dateLayout), p.ActualFee.String(), nullDecimal(p.TotalAssets),
		nullString(p.Method), nullString(p.Notes),
		string(p.Status), p.UpdatedAt.UTC().Format(timeLayout), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, billing.ErrNotFound)
	}
	return nil
}

func getPayment(ctx context.Context, db querier, id billing.PaymentID) (payments.Payment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, fmt.Errorf("payment %s: %w", id, billing.ErrNotFound)
	}
	return p, err
}

func listPayments(ctx context.Context, db querier, contractID billing.ContractID) ([]payments.Payment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE contract_id = ?
		ORDER BY received_date ASC, created_at ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []payments.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPayment(row scanner) (payments.Payment, error) {
	var (
		p                    payments.Payment
		receivedDate         string
		actualFee            string
		totalAssets          sql.NullString
		method, notes        sql.NullString
		kind                 string
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&p.ID, &p.ClientID, &p.ContractID, &receivedDate, &actualFee, &totalAssets,
		&method, &notes, &kind, &p.Start.Index, &p.Start.Year, &p.End.Index, &p.End.Year,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.ReceivedDate, _ = time.Parse(dateLayout, receivedDate)
	p.ActualFee, err = decimal.NewFromString(actualFee)
	if err != nil {
		return p, fmt.Errorf("payment %s: bad actual_fee %q: %w", p.ID, actualFee, err)
	}
	p.TotalAssets = parseNullDecimal(totalAssets)
	p.Method = method.String
	p.Notes = notes.String
	p.Start.Kind = billing.PeriodKind(kind)
	p.End.Kind = billing.PeriodKind(kind)
	p.Status = payments.Status(status)
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return p, nil
}

// =============================================================================
// TRANSACTIONAL STORE (payments.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store payments.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Create(ctx context.Context, p payments.Payment) error {
	return createPayment(ctx, ts.tx, p)
}

func (ts *txStore) Update(ctx context.Context, p payments.Payment) error {
	return updatePayment(ctx, ts.tx, p)
}

func (ts *txStore) Get(ctx context.Context, id billing.PaymentID) (payments.Payment, error) {
	return getPayment(ctx, ts.tx, id)
}

func (ts *txStore) List(ctx context.Context, contractID billing.ContractID) ([]payments.Payment, error) {
	return listPayments(ctx, ts.tx, contractID)
}

var (
	_ payments.TxStore          = (*Store)(nil)
	_ payments.ContractProvider = (*Store)(nil)
	_ payments.PeriodProvider   = (*Store)(nil)
	_ payments.AUMProvider      = (*Store)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
