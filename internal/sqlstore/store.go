// Package sqlstore stores cards and payments in PostgreSQL or SQLite through
// database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonanatree/visapay/visa/models"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

var tracer = otel.Tracer("visapay/sqlstore")

// Store implements the card and payment store on a *sql.DB. Uniqueness of
// (id_comercio, id_transaccion) and the card foreign key are left to the
// database constraints.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// OpenPostgres connects to dsn and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, Postgres), nil
}

// OpenSQLite opens the database file at path with foreign keys enforced.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return New(db, SQLite), nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "EnsureSchema")
	defer func() { endSpan(span, err) }()

	stmts := postgresSchema
	if s.dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertCard(ctx context.Context, card *models.Card) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertCard")
	defer func() { endSpan(span, err) }()

	if err := card.Validate(); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO tarjeta (numero, nombre, fecha_caducidad, codigo_autorizacion)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (numero) DO UPDATE SET
			nombre = excluded.nombre,
			fecha_caducidad = excluded.fecha_caducidad,
			codigo_autorizacion = excluded.codigo_autorizacion
	`), card.Number, card.HolderName, card.Expiry, card.AuthCode)
	if err != nil {
		return fmt.Errorf("upserting card: %w", translate(err))
	}
	return nil
}

// DeleteCard removes a card; its payments go with it.
func (s *Store) DeleteCard(ctx context.Context, number string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteCard")
	defer func() { endSpan(span, err) }()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tarjeta WHERE numero = $1`), number)
	if err != nil {
		return fmt.Errorf("deleting card: %w", err)
	}
	return affectedOne(res, "card")
}

// Clear removes every payment and card.
func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Clear")
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM pago`, `DELETE FROM tarjeta`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) FindCard(ctx context.Context, q models.CardQuery) (found bool, err error) {
	ctx, span := s.startSpan(ctx, "FindCard")
	defer func() { endSpan(span, err) }()

	if q.IsEmpty() {
		return false, nil
	}

	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("numero", q.Number)
	add("nombre", q.HolderName)
	add("fecha_caducidad", q.Expiry)
	add("codigo_autorizacion", q.AuthCode)

	var n int64
	query := s.rebind(`SELECT COUNT(*) FROM tarjeta WHERE ` + strings.Join(conds, " AND "))
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("finding card: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CreatePayment(ctx context.Context, p models.CreatePayment) (payment *models.Payment, err error) {
	ctx, span := s.startSpan(ctx, "CreatePayment")
	defer func() { endSpan(span, err) }()

	payment = &models.Payment{
		MerchantID:    p.MerchantID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		CardNumber:    p.CardNumber,
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
	}

	var code string
	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO pago (id_comercio, id_transaccion, importe, tarjeta_id, marca_tiempo)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, codigo_respuesta
	`), p.MerchantID, p.TransactionID, p.Amount, p.CardNumber, payment.CreatedAt).Scan(&payment.ID, &code)
	if err != nil {
		return nil, fmt.Errorf("inserting payment: %w", translate(err))
	}
	payment.ResponseCode = models.ResponseCode(code)

	return payment, nil
}

func (s *Store) DeletePayment(ctx context.Context, id int64) (err error) {
	ctx, span := s.startSpan(ctx, "DeletePayment")
	defer func() { endSpan(span, err) }()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pago WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("deleting payment: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("payment %d", id))
}

func (s *Store) ListPayments(ctx context.Context, merchantID string) (payments []*models.Payment, err error) {
	ctx, span := s.startSpan(ctx, "ListPayments")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, id_comercio, id_transaccion, importe, tarjeta_id, marca_tiempo, codigo_respuesta
		FROM pago
		WHERE id_comercio = $1
		ORDER BY id
	`), merchantID)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	payments = make([]*models.Payment, 0)
	for rows.Next() {
		p := &models.Payment{}
		var code string
		if err := rows.Scan(&p.ID, &p.MerchantID, &p.TransactionID, &p.Amount, &p.CardNumber, &p.CreatedAt, &code); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.ResponseCode = models.ResponseCode(code)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return payments, nil
}

func affectedOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders to ?N for SQLite.
func (s *Store) rebind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

func (s *Store) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlstore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", string(s.dialect))),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
