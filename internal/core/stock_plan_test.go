package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"darbar-billing/internal/core"
)

func req(itemID, qty int) core.StockRequest {
	return core.StockRequest{ItemID: itemID, Quantity: qty}
}

func TestPlanStockUpdate(t *testing.T) {
	const a, b, c = 1, 2, 3

	tests := []struct {
		name       string
		original   []core.StockRequest
		updated    []core.StockRequest
		additions  []core.PlannedChange
		deductions []core.PlannedChange
	}{
		{
			name:       "A5 becomes A2 plus B4",
			original:   []core.StockRequest{req(a, 5)},
			updated:    []core.StockRequest{req(a, 2), req(b, 4)},
			additions:  []core.PlannedChange{{ItemID: a, Quantity: 3, Reason: core.ChangeDecreased}},
			deductions: []core.PlannedChange{{ItemID: b, Quantity: 4, Reason: core.ChangeAdded}},
		},
		{
			name:      "item removed",
			original:  []core.StockRequest{req(a, 5), req(b, 1)},
			updated:   []core.StockRequest{req(a, 5)},
			additions: []core.PlannedChange{{ItemID: b, Quantity: 1, Reason: core.ChangeRemoved}},
		},
		{
			name:       "item increased",
			original:   []core.StockRequest{req(c, 1)},
			updated:    []core.StockRequest{req(c, 4)},
			deductions: []core.PlannedChange{{ItemID: c, Quantity: 3, Reason: core.ChangeIncreased}},
		},
		{
			name:     "duplicates summed before diffing",
			original: []core.StockRequest{req(a, 2), req(a, 3)},
			updated:  []core.StockRequest{req(a, 5)},
		},
		{
			name:       "duplicates on the updated side",
			original:   []core.StockRequest{req(a, 2)},
			updated:    []core.StockRequest{req(a, 2), req(a, 1)},
			deductions: []core.PlannedChange{{ItemID: a, Quantity: 1, Reason: core.ChangeIncreased}},
		},
		{
			name:      "empty updated set restores everything",
			original:  []core.StockRequest{req(b, 2), req(a, 1)},
			additions: []core.PlannedChange{{ItemID: a, Quantity: 1, Reason: core.ChangeRemoved}, {ItemID: b, Quantity: 2, Reason: core.ChangeRemoved}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := core.PlanStockUpdate(tt.original, tt.updated)
			assert.Equal(t, tt.additions, plan.Additions)
			assert.Equal(t, tt.deductions, plan.Deductions)
			assert.Equal(t, len(tt.additions) == 0 && len(tt.deductions) == 0, plan.Empty())
		})
	}
}

func TestPlanStockUpdate_AppliedPlanReachesUpdatedQuantities(t *testing.T) {
	original := []core.StockRequest{req(1, 5), req(2, 3), req(4, 1)}
	updated := []core.StockRequest{req(1, 2), req(2, 7), req(3, 4)}

	held := map[int]int{}
	for _, r := range original {
		held[r.ItemID] += r.Quantity
	}
	plan := core.PlanStockUpdate(original, updated)
	for _, ch := range plan.Additions {
		held[ch.ItemID] -= ch.Quantity
	}
	for _, ch := range plan.Deductions {
		held[ch.ItemID] += ch.Quantity
	}

	want := map[int]int{1: 2, 2: 7, 3: 4, 4: 0}
	assert.Equal(t, want, held)
}

func TestGroupRequests(t *testing.T) {
	got := core.GroupRequests([]core.StockRequest{req(3, 1), req(1, 2), req(3, 4), req(0, 5), req(2, 0), req(2, -1)})
	assert.Equal(t, []core.StockRequest{req(1, 2), req(3, 5)}, got)

	assert.Empty(t, core.GroupRequests(nil))
}

func TestNetIncrease(t *testing.T) {
	original := []core.StockRequest{req(1, 5), req(2, 2)}
	updated := []core.StockRequest{req(1, 3), req(2, 1), req(2, 3), req(3, 1)}

	assert.Equal(t, []core.StockRequest{req(2, 2), req(3, 1)}, core.NetIncrease(original, updated))
	assert.Empty(t, core.NetIncrease(updated, nil))
}
