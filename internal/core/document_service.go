package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// NumberSeries describes one family of human-readable document numbers:
// PREFIX-PERIOD-SEQ, or PREFIX-SEQ when the series has no period.
type NumberSeries struct {
	Prefix string
	Period string // time layout of the period part, empty for none
	Width  int

	table  string
	column string
}

var (
	RetailInvoiceSeries    = NumberSeries{Prefix: "RTL", Period: "20060102", Width: 3, table: "invoices", column: "invoice_number"}
	WholesaleInvoiceSeries = NumberSeries{Prefix: "WHL", Period: "20060102", Width: 3, table: "invoices", column: "invoice_number"}
	ReturnSeries           = NumberSeries{Prefix: "RET", Period: "200601", Width: 4, table: "invoice_returns", column: "return_number"}
	PaymentSeries          = NumberSeries{Prefix: "PAY", Period: "200601", Width: 4, table: "invoice_payments", column: "payment_number"}
	ItemCodeSeries         = NumberSeries{Prefix: "HSN", Width: 4, table: "items", column: "code"}
)

// InvoiceSeries returns the number series for an invoice type.
func InvoiceSeries(t InvoiceType) NumberSeries {
	if t == InvoiceWholesale {
		return WholesaleInvoiceSeries
	}
	return RetailInvoiceSeries
}

// Stem is the part of the number shared by every document of the period, e.g. "RTL-20260115-".
func (s NumberSeries) Stem(at time.Time) string {
	if s.Period == "" {
		return s.Prefix + "-"
	}
	return s.Prefix + "-" + at.Format(s.Period) + "-"
}

// Format renders the number for sequence seq.
func (s NumberSeries) Format(at time.Time, seq int) string {
	return fmt.Sprintf("%s%0*d", s.Stem(at), s.Width, seq)
}

// WithSuffix appends a timestamp suffix used after a collision.
func (s NumberSeries) WithSuffix(number string, at time.Time) string {
	return fmt.Sprintf("%s-%d", number, at.UnixNano()%1_000_000_000)
}

// ParseSequence extracts the sequence part of number for the given stem.
// Collision suffixes are ignored.
func ParseSequence(stem, number string) (int, bool) {
	rest, ok := strings.CutPrefix(number, stem)
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ErrNumberAttemptsExhausted is returned when every generated number collided.
var ErrNumberAttemptsExhausted = errors.New("document number generation exhausted its retry bound")

// DocumentNumberer assigns unique numbers to invoices, returns, payments and items.
type DocumentNumberer interface {
	// NextTx proposes the next number of the series for the period containing at.
	NextTx(ctx context.Context, tx pgx.Tx, s NumberSeries, at time.Time) (string, error)
	// InsertWithNumberTx runs insert with a proposed number inside a savepoint.
	// On a unique violation it regenerates the number with a timestamp suffix
	// and retries, up to the configured bound. It returns the number used.
	InsertWithNumberTx(ctx context.Context, tx pgx.Tx, s NumberSeries, at time.Time,
		insert func(tx pgx.Tx, number string) error) (string, error)
}

type documentNumberer struct {
	maxAttempts int
	log         logrus.FieldLogger
}

func NewDocumentNumberer(maxAttempts int, log logrus.FieldLogger) DocumentNumberer {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &documentNumberer{maxAttempts: maxAttempts, log: log}
}

func (n *documentNumberer) NextTx(ctx context.Context, tx pgx.Tx, s NumberSeries, at time.Time) (string, error) {
	stem := s.Stem(at)
	pattern := "^" + regexp.QuoteMeta(stem) + `(\d+)`

	var last int
	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(CAST(substring(%[1]s FROM $2) AS INTEGER)), 0)
		FROM %[2]s
		WHERE %[1]s LIKE $1
	`, s.column, s.table)
	if err := tx.QueryRow(ctx, query, stem+"%", pattern).Scan(&last); err != nil {
		return "", fmt.Errorf("failed to read last %s number: %w", s.Prefix, err)
	}
	return s.Format(at, last+1), nil
}

func (n *documentNumberer) InsertWithNumberTx(ctx context.Context, tx pgx.Tx, s NumberSeries, at time.Time,
	insert func(tx pgx.Tx, number string) error) (string, error) {

	number, err := n.NextTx(ctx, tx, s, at)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to open savepoint: %w", err)
		}
		err = insert(sp, number)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return "", fmt.Errorf("failed to release savepoint: %w", err)
			}
			return number, nil
		}
		_ = sp.Rollback(ctx)
		if !isUniqueViolation(err) {
			return "", err
		}

		n.log.WithFields(logrus.Fields{
			"series":  s.Prefix,
			"number":  number,
			"attempt": attempt,
		}).Warn("document number collision, regenerating")

		next, err := n.NextTx(ctx, tx, s, at)
		if err != nil {
			return "", err
		}
		number = s.WithSuffix(next, time.Now())
	}

	n.log.WithFields(logrus.Fields{
		"series":       s.Prefix,
		"max_attempts": n.maxAttempts,
	}).Error("document number retry bound reached")
	return "", fmt.Errorf("%s after %d attempts: %w", s.Prefix, n.maxAttempts, ErrNumberAttemptsExhausted)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
