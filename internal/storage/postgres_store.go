package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/qiupay/gateway/internal/config"
)

// PostgresStore persists entities in PostgreSQL via raw database/sql and
// lib/pq, with no ORM and schema managed by CREATE TABLE IF NOT EXISTS
// statements run at startup.
type PostgresStore struct {
	db     *sql.DB
	owned  bool // true if this store opened db itself and must close it
	tables tableNames
}

type tableNames struct {
	merchants    string
	credentials  string
	orders       string
	callbackLogs string
	balanceLogs  string
}

func resolveTableNames(mapping config.SchemaMappingConfig) tableNames {
	t := tableNames{
		merchants:    "merchants",
		credentials:  "credentials",
		orders:       "orders",
		callbackLogs: "callback_logs",
		balanceLogs:  "balance_logs",
	}
	if mapping.Merchants.TableName != "" {
		t.merchants = mapping.Merchants.TableName
	}
	if mapping.Credentials.TableName != "" {
		t.credentials = mapping.Credentials.TableName
	}
	if mapping.Orders.TableName != "" {
		t.orders = mapping.Orders.TableName
	}
	if mapping.CallbackLogs.TableName != "" {
		t.callbackLogs = mapping.CallbackLogs.TableName
	}
	if mapping.BalanceLogs.TableName != "" {
		t.balanceLogs = mapping.BalanceLogs.TableName
	}
	return t
}

// NewPostgresStore opens a new connection pool and ensures the schema exists.
func NewPostgresStore(connectionString string, poolCfg config.PostgresPoolConfig, mapping config.SchemaMappingConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	config.ApplyPostgresPoolSettings(db, poolCfg)

	store := &PostgresStore{db: db, owned: true, tables: resolveTableNames(mapping)}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB builds a PostgresStore over an already-open shared
// connection pool (e.g. one also used by an admin service).
func NewPostgresStoreWithDB(db *sql.DB, mapping config.SchemaMappingConfig) (*PostgresStore, error) {
	store := &PostgresStore{db: db, owned: false, tables: resolveTableNames(mapping)}
	if err := store.ensureSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// OpenConnections reports the pool's current open connection count, used by
// InstrumentedStore to feed the DBConnectionsActive gauge.
func (s *PostgresStore) OpenConnections() int {
	return s.db.Stats().OpenConnections
}

func (s *PostgresStore) ensureSchema() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			key TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			money BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.tables.merchants),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL REFERENCES %s(id),
			qrcode_url TEXT NOT NULL,
			app_id TEXT NOT NULL,
			public_key_encrypted TEXT NOT NULL,
			private_key_encrypted TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.tables.credentials, s.tables.merchants),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_merchant ON %s(merchant_id)`, s.tables.credentials, s.tables.credentials),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			trade_no TEXT UNIQUE NOT NULL,
			out_trade_no TEXT NOT NULL,
			merchant_id TEXT NOT NULL REFERENCES %s(id),
			credential_id TEXT NOT NULL REFERENCES %s(id),
			type TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			original_money BIGINT NOT NULL,
			money BIGINT NOT NULL,
			adjust_amount BIGINT NOT NULL,
			status SMALLINT NOT NULL DEFAULT 0,
			base_balance BIGINT NOT NULL DEFAULT 0,
			confirm_balance BIGINT NOT NULL DEFAULT 0,
			notify_url TEXT NOT NULL,
			return_url TEXT NOT NULL DEFAULT '',
			param TEXT NOT NULL DEFAULT '',
			paid_at TIMESTAMPTZ,
			expired_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			callback_status SMALLINT NOT NULL DEFAULT 0,
			callback_attempts INT NOT NULL DEFAULT 0
		)`, s.tables.orders, s.tables.merchants, s.tables.credentials),
		// Amount-uniqueness invariant, enforced as defense in depth alongside
		// the order engine's per-credential application lock.
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_pending_amount
			ON %s(credential_id, money) WHERE status = 0`, s.tables.orders, s.tables.orders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_credential_status ON %s(credential_id, status)`, s.tables.orders, s.tables.orders),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES %s(id),
			attempt INT NOT NULL,
			url TEXT NOT NULL,
			http_status INT NOT NULL,
			response_body TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.tables.callbackLogs, s.tables.orders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_order ON %s(order_id)`, s.tables.callbackLogs, s.tables.callbackLogs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			credential_id TEXT NOT NULL,
			available_amount BIGINT NOT NULL,
			match_result TEXT NOT NULL,
			matched_trade_nos TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.tables.balanceLogs),
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateMerchant(ctx context.Context, m Merchant) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, username, key, active, money, created_at) VALUES ($1,$2,$3,$4,$5,$6)`, s.tables.merchants),
		m.ID, m.Username, m.Key, m.Active, m.Money, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create merchant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMerchant(ctx context.Context, id string) (Merchant, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, username, key, active, money, created_at FROM %s WHERE id = $1`, s.tables.merchants), id)
	return scanMerchant(row)
}

func (s *PostgresStore) GetMerchantByUsername(ctx context.Context, username string) (Merchant, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, username, key, active, money, created_at FROM %s WHERE username = $1`, s.tables.merchants), username)
	return scanMerchant(row)
}

func scanMerchant(row *sql.Row) (Merchant, error) {
	var m Merchant
	if err := row.Scan(&m.ID, &m.Username, &m.Key, &m.Active, &m.Money, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, fmt.Errorf("storage: scan merchant: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) SetMerchantActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET active = $1 WHERE id = $2`, s.tables.merchants), active, id)
	return checkRowsAffected(res, err)
}

func (s *PostgresStore) CreditMerchant(ctx context.Context, id string, amount int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET money = money + $1 WHERE id = $2`, s.tables.merchants), amount, id)
	return checkRowsAffected(res, err)
}

func (s *PostgresStore) CreateCredential(ctx context.Context, c Credential) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, merchant_id, qrcode_url, app_id, public_key_encrypted, private_key_encrypted, active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.tables.credentials),
		c.ID, c.MerchantID, c.QRCodeURL, c.AppID, c.PublicKeyEncrypted, c.PrivateKeyEncrypted, c.Active, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredential(ctx context.Context, id string) (Credential, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, merchant_id, qrcode_url, app_id, public_key_encrypted, private_key_encrypted, active, created_at
			FROM %s WHERE id = $1`, s.tables.credentials), id)
	return scanCredential(row)
}

func scanCredential(row *sql.Row) (Credential, error) {
	var c Credential
	if err := row.Scan(&c.ID, &c.MerchantID, &c.QRCodeURL, &c.AppID, &c.PublicKeyEncrypted, &c.PrivateKeyEncrypted, &c.Active, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("storage: scan credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCredentialsByMerchant(ctx context.Context, merchantID string) ([]Credential, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, merchant_id, qrcode_url, app_id, public_key_encrypted, private_key_encrypted, active, created_at
			FROM %s WHERE merchant_id = $1`, s.tables.credentials), merchantID)
	if err != nil {
		return nil, fmt.Errorf("storage: list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.MerchantID, &c.QRCodeURL, &c.AppID, &c.PublicKeyEncrypted, &c.PrivateKeyEncrypted, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan credential row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetCredentialActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET active = $1 WHERE id = $2`, s.tables.credentials), active, id)
	return checkRowsAffected(res, err)
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o Order) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, trade_no, out_trade_no, merchant_id, credential_id, type, name, original_money, money,
			adjust_amount, status, base_balance, confirm_balance, notify_url, return_url, param, paid_at, expired_at,
			created_at, callback_status, callback_attempts)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`, s.tables.orders),
		o.ID, o.TradeNo, o.OutTradeNo, o.MerchantID, o.CredentialID, o.Type, o.Name, o.OriginalMoney, o.Money,
		o.AdjustAmount, o.Status, o.BaseBalance, o.ConfirmBalance, o.NotifyURL, o.ReturnURL, o.Param, o.PaidAt, o.ExpiredAt,
		o.CreatedAt, o.CallbackStatus, o.CallbackAttempts,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAmountConflict
		}
		return fmt.Errorf("storage: create order: %w", err)
	}
	return nil
}

const orderColumns = `id, trade_no, out_trade_no, merchant_id, credential_id, type, name, original_money, money,
	adjust_amount, status, base_balance, confirm_balance, notify_url, return_url, param, paid_at, expired_at,
	created_at, callback_status, callback_attempts`

func scanOrder(scanner interface{ Scan(dest ...interface{}) error }) (Order, error) {
	var o Order
	if err := scanner.Scan(
		&o.ID, &o.TradeNo, &o.OutTradeNo, &o.MerchantID, &o.CredentialID, &o.Type, &o.Name, &o.OriginalMoney, &o.Money,
		&o.AdjustAmount, &o.Status, &o.BaseBalance, &o.ConfirmBalance, &o.NotifyURL, &o.ReturnURL, &o.Param, &o.PaidAt, &o.ExpiredAt,
		&o.CreatedAt, &o.CallbackStatus, &o.CallbackAttempts,
	); err != nil {
		if err == sql.ErrNoRows {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("storage: scan order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOrderByTradeNo(ctx context.Context, tradeNo string) (Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE trade_no = $1`, orderColumns, s.tables.orders), tradeNo)
	return scanOrder(row)
}

func (s *PostgresStore) GetOrderByOutTradeNo(ctx context.Context, merchantID, outTradeNo string) (Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE merchant_id = $1 AND out_trade_no = $2`, orderColumns, s.tables.orders),
		merchantID, outTradeNo)
	return scanOrder(row)
}

func (s *PostgresStore) CountOrdersByMerchant(ctx context.Context, merchantID string, since time.Time) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	var count int
	var err error
	if since.IsZero() {
		err = s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE merchant_id = $1`, s.tables.orders),
			merchantID).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE merchant_id = $1 AND created_at >= $2`, s.tables.orders),
			merchantID, since).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("storage: count orders by merchant: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListPendingOrdersByCredential(ctx context.Context, credentialID string) ([]Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE credential_id = $1 AND status = 0 ORDER BY created_at ASC`, orderColumns, s.tables.orders),
		credentialID)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkOrdersPaid(ctx context.Context, tradeNos []string, confirmBalance int64, paidAt time.Time) error {
	if len(tradeNos) == 0 {
		return nil
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, tn := range tradeNos {
		var orderID, merchantID string
		var money int64
		var status OrderStatus
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT id, merchant_id, money, status FROM %s WHERE trade_no = $1 FOR UPDATE`, s.tables.orders), tn,
		).Scan(&orderID, &merchantID, &money, &status)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("storage: order %q not found", tn)
			}
			return fmt.Errorf("storage: lock order %q: %w", tn, err)
		}
		if status != OrderPending {
			return fmt.Errorf("storage: order %q is not pending", tn)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET status = $1, confirm_balance = $2, paid_at = $3 WHERE trade_no = $4`, s.tables.orders),
			OrderPaid, confirmBalance, paidAt, tn,
		); err != nil {
			return fmt.Errorf("storage: mark order %q paid: %w", tn, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET money = money + $1 WHERE id = $2`, s.tables.merchants), money, merchantID,
		); err != nil {
			return fmt.Errorf("storage: credit merchant for order %q: %w", tn, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1, expired_at = now()
			WHERE status = 0 AND created_at < $2 RETURNING trade_no`, s.tables.orders),
		OrderExpired, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: expire pending orders: %w", err)
	}
	defer rows.Close()

	var tradeNos []string
	for rows.Next() {
		var tn string
		if err := rows.Scan(&tn); err != nil {
			return nil, fmt.Errorf("storage: scan expired trade_no: %w", err)
		}
		tradeNos = append(tradeNos, tn)
	}
	return tradeNos, rows.Err()
}

func (s *PostgresStore) RebaseCredentialBalance(ctx context.Context, credentialID string, newBaseBalance int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET base_balance = $1 WHERE credential_id = $2 AND status = 0`, s.tables.orders),
		newBaseBalance, credentialID,
	)
	if err != nil {
		return fmt.Errorf("storage: rebase credential balance: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCallbackStatus(ctx context.Context, tradeNo string, status CallbackStatus, attempts int) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET callback_status = $1, callback_attempts = $2 WHERE trade_no = $3`, s.tables.orders),
		status, attempts, tradeNo,
	)
	return checkRowsAffected(res, err)
}

func (s *PostgresStore) ListOrdersForCallbackRetry(ctx context.Context, maxAttempts int) ([]Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 AND callback_status IN ($2, $3) AND callback_attempts < $4
			ORDER BY created_at ASC`, orderColumns, s.tables.orders),
		OrderPaid, CallbackFailed, CallbackInFlight, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("storage: list orders for callback retry: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendCallbackLog(ctx context.Context, log CallbackLog) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, order_id, attempt, url, http_status, response_body, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`, s.tables.callbackLogs),
		log.ID, log.OrderID, log.Attempt, log.URL, log.HTTPStatus, log.ResponseBody, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: append callback log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCallbackLogsByOrder(ctx context.Context, orderID string) ([]CallbackLog, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, order_id, attempt, url, http_status, response_body, created_at
			FROM %s WHERE order_id = $1 ORDER BY attempt ASC`, s.tables.callbackLogs), orderID)
	if err != nil {
		return nil, fmt.Errorf("storage: list callback logs: %w", err)
	}
	defer rows.Close()

	var out []CallbackLog
	for rows.Next() {
		var l CallbackLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Attempt, &l.URL, &l.HTTPStatus, &l.ResponseBody, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan callback log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendBalanceLog(ctx context.Context, log BalanceLog) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, credential_id, available_amount, match_result, matched_trade_nos, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`, s.tables.balanceLogs),
		log.ID, log.CredentialID, log.AvailableAmount, log.MatchResult, pq.Array(log.MatchedTradeNos), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: append balance log: %w", err)
	}
	return nil
}

func checkRowsAffected(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("storage: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
