package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PartyService manages wholesale customers. Balances are derived on read from
// active invoices and payments and never stored.
type PartyService interface {
	CreateParty(ctx context.Context, name, phone, email string) (*Party, error)
	GetParty(ctx context.Context, partyID int) (*Party, error)
	ListParties(ctx context.Context) ([]Party, error)
	GetPartyBalance(ctx context.Context, partyID int) (*PartyBalance, error)
}

type partyService struct {
	pool *pgxpool.Pool
}

func NewPartyService(pool *pgxpool.Pool) PartyService {
	return &partyService{pool: pool}
}

func (s *partyService) CreateParty(ctx context.Context, name, phone, email string) (*Party, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationErrors{Errs: []error{errors.New("party name is required")}}
	}
	var p Party
	err := s.pool.QueryRow(ctx, `
		INSERT INTO parties (name, phone, email)
		VALUES ($1, $2, $3)
		RETURNING id, name, phone, email, state, created_at
	`, name, strings.TrimSpace(phone), strings.TrimSpace(email)).Scan(
		&p.ID, &p.Name, &p.Phone, &p.Email, &p.State, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create party: %w", err)
	}
	return &p, nil
}

func (s *partyService) GetParty(ctx context.Context, partyID int) (*Party, error) {
	var p Party
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, state, created_at
		FROM parties
		WHERE id = $1 AND state = 'active'
	`, partyID).Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.State, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &RecordNotFoundError{Kind: "party", ID: partyID}
		}
		return nil, fmt.Errorf("failed to fetch party %d: %w", partyID, err)
	}
	return &p, nil
}

func (s *partyService) ListParties(ctx context.Context) ([]Party, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, phone, email, state, created_at
		FROM parties
		WHERE state = 'active'
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.State, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// GetPartyBalance returns Σ total_amount of the party's active invoices minus
// Σ active payments against them.
func (s *partyService) GetPartyBalance(ctx context.Context, partyID int) (*PartyBalance, error) {
	var b PartyBalance
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.name,
		       COALESCE((SELECT SUM(i.total_amount)
		                 FROM invoices i
		                 WHERE i.party_id = p.id AND i.state = 'active'), 0),
		       COALESCE((SELECT SUM(pm.amount)
		                 FROM invoice_payments pm
		                 JOIN invoices i ON i.id = pm.invoice_id
		                 WHERE i.party_id = p.id AND i.state = 'active' AND pm.state = 'active'), 0)
		FROM parties p
		WHERE p.id = $1 AND p.state = 'active'
	`, partyID).Scan(&b.PartyID, &b.PartyName, &b.TotalInvoiced, &b.TotalPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &RecordNotFoundError{Kind: "party", ID: partyID}
		}
		return nil, fmt.Errorf("failed to compute balance for party %d: %w", partyID, err)
	}
	b.Pending = b.TotalInvoiced.Sub(b.TotalPaid)
	return &b, nil
}
