package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"darbar-billing/internal/app"
	"darbar-billing/internal/core"
)

type fakeService struct {
	app.ApplicationService
	audit *app.AuditResult
}

func (f *fakeService) GetInvoice(ctx context.Context, invoiceID int) (*core.Invoice, error) {
	return &core.Invoice{
		ID:     invoiceID,
		Number: "RTL-20260115-001",
		Type:   core.InvoiceRetail,
		Date:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Totals: core.InvoiceTotals{
			TotalAmount: decimal.NewFromInt(1792),
			TotalPaid:   decimal.NewFromInt(1792),
			IsPaid:      true,
		},
	}, nil
}

func (f *fakeService) AuditStock(ctx context.Context) (*app.AuditResult, error) {
	return f.audit, nil
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, Run(context.Background(), &fakeService{}, nil, &out), ErrUsage)
	assert.ErrorIs(t, Run(context.Background(), &fakeService{}, []string{"ship"}, &out), ErrUsage)
	assert.ErrorIs(t, Run(context.Background(), &fakeService{}, []string{"invoice"}, &out), ErrUsage)

	err := Run(context.Background(), &fakeService{}, []string{"invoice", "x"}, &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUsage))
}

func TestRun_Invoice(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), &fakeService{}, []string{"inv", "7"}, &out))

	assert.Contains(t, out.String(), "RTL-20260115-001")
	assert.Contains(t, out.String(), "1792.00")
	assert.Contains(t, out.String(), "PAID")
}

func TestRun_Audit(t *testing.T) {
	var out bytes.Buffer
	svc := &fakeService{audit: &app.AuditResult{Consistent: true}}
	require.NoError(t, Run(context.Background(), svc, []string{"audit"}, &out))
	assert.Contains(t, out.String(), "consistent")

	out.Reset()
	svc.audit = &app.AuditResult{Discrepancies: []core.StockDiscrepancy{
		{ItemID: 1, Code: "HSN-0001", Name: "Kurta", Quantity: 4, InitialQuantity: 10, MovementSum: -5},
	}}
	require.NoError(t, Run(context.Background(), svc, []string{"audit"}, &out))
	assert.Contains(t, out.String(), "quantity 4, expected 5")
}
