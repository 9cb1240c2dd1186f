package core

// ChangeReason classifies one entry of a differential stock plan.
type ChangeReason string

const (
	ChangeRemoved   ChangeReason = "removed"
	ChangeDecreased ChangeReason = "decreased"
	ChangeAdded     ChangeReason = "added"
	ChangeIncreased ChangeReason = "increased"
)

type PlannedChange struct {
	ItemID   int
	Quantity int
	Reason   ChangeReason
}

// StockPlan is the minimal set of ledger calls that moves an invoice's stock
// from one line set to another. Additions give stock back; deductions take it.
type StockPlan struct {
	Additions  []PlannedChange
	Deductions []PlannedChange
}

func (p StockPlan) Empty() bool {
	return len(p.Additions) == 0 && len(p.Deductions) == 0
}

// PlanStockUpdate diffs two line sets. Quantities for the same item are summed
// within each side before diffing. Entries are ordered by item id.
//
//	only in original          -> add original qty       (removed)
//	only in updated           -> deduct updated qty     (added)
//	in both, updated < orig   -> add the difference     (decreased)
//	in both, updated > orig   -> deduct the difference  (increased)
func PlanStockUpdate(original, updated []StockRequest) StockPlan {
	orig := make(map[int]int)
	for _, r := range GroupRequests(original) {
		orig[r.ItemID] = r.Quantity
	}
	upd := make(map[int]int)
	for _, r := range GroupRequests(updated) {
		upd[r.ItemID] = r.Quantity
	}

	var plan StockPlan
	for _, r := range GroupRequests(original) {
		newQty, ok := upd[r.ItemID]
		switch {
		case !ok:
			plan.Additions = append(plan.Additions, PlannedChange{ItemID: r.ItemID, Quantity: r.Quantity, Reason: ChangeRemoved})
		case newQty < r.Quantity:
			plan.Additions = append(plan.Additions, PlannedChange{ItemID: r.ItemID, Quantity: r.Quantity - newQty, Reason: ChangeDecreased})
		}
	}
	for _, r := range GroupRequests(updated) {
		oldQty, ok := orig[r.ItemID]
		switch {
		case !ok:
			plan.Deductions = append(plan.Deductions, PlannedChange{ItemID: r.ItemID, Quantity: r.Quantity, Reason: ChangeAdded})
		case r.Quantity > oldQty:
			plan.Deductions = append(plan.Deductions, PlannedChange{ItemID: r.ItemID, Quantity: r.Quantity - oldQty, Reason: ChangeIncreased})
		}
	}
	return plan
}
