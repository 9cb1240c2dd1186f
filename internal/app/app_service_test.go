package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() ApplicationService {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewAppService(nil, nil, nil, nil, nil, log)
}

func TestCreateParty_RejectsBadRequest(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateParty(context.Background(), CreatePartyRequest{Email: "not-an-email"})
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "required", reqErr.Fields["name"])
	assert.Equal(t, "email", reqErr.Fields["email"])
	assert.Contains(t, reqErr.Error(), "name: required")
}

func TestCreateInvoice_RejectsBadRequest(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Type: "export",
		InvoiceHeader: InvoiceHeader{
			CustomerMobile: "12ab",
			Lines:          []LineRequest{{Quantity: 0, Rate: decimal.NewFromInt(10)}},
		},
	})
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "oneof", reqErr.Fields["invoice_type"])

	var lineRule string
	for field, tag := range reqErr.Fields {
		if tag == "required" && field != "invoice_type" {
			lineRule = field
		}
	}
	assert.Contains(t, lineRule, "lines[0].quantity")
}

func TestStockMutation_RequiresItems(t *testing.T) {
	svc := newTestService()

	_, err := svc.DeductStock(context.Background(), StockMutationRequest{})
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "required", reqErr.Fields["items"])

	_, err = svc.DeductStock(context.Background(), StockMutationRequest{
		Items: []StockItemRequest{{ItemID: 0, Quantity: 2}},
	})
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "required", reqErr.Fields["items[0].item_id"])
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("date", "")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDate("date", "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, 15, d.Day())

	_, err = parseDate("date", "15/01/2026")
	var reqErr *RequestError
	assert.True(t, errors.As(err, &reqErr))
}

func TestActorOrDefault(t *testing.T) {
	assert.Equal(t, DefaultActor, actorOrDefault("  "))
	assert.Equal(t, "asha", actorOrDefault(" asha "))
}

func TestProcessValidationErrors_NonValidatorError(t *testing.T) {
	fields := ProcessValidationErrors(errors.New("boom"))
	assert.Equal(t, map[string]string{"request": "boom"}, fields)
}
