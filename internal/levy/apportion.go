package levy

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratum-app/backend/internal/apperr"
)

// Share is one lot's entitlement weight. Shares are apportioned in the order given,
// which is also the tie-break order for leftover cents.
type Share struct {
	LotID     uuid.UUID
	LotNumber int
	Weight    decimal.Decimal
}

// Allocation is the whole-cent amount assigned to a lot.
type Allocation struct {
	LotID       uuid.UUID `json:"lot_id"`
	LotNumber   int       `json:"lot_number"`
	AmountCents int64     `json:"amount_cents"`
}

// Reconciliation describes how rounding was settled.
type Reconciliation struct {
	BudgetCents    int64  `json:"budget_cents"`
	AllocatedCents int64  `json:"allocated_cents"`
	ResidualCents  int64  `json:"residual_cents"`
	Note           string `json:"note"`
}

// Apportion splits budgetCents across lots in proportion to their weights using the
// largest-remainder method. Every lot first gets the floor of its exact share; the
// leftover cents go one each to the lots with the largest fractional remainders, ties
// going to the earlier lot. The allocations always sum to budgetCents.
func Apportion(budgetCents int64, lots []Share) ([]Allocation, Reconciliation, error) {
	if budgetCents < 1 {
		return nil, Reconciliation{}, apperr.Validation("budget must be at least 1 cent")
	}
	if len(lots) == 0 {
		return nil, Reconciliation{}, apperr.Validation("scheme has no active lots")
	}

	total := decimal.Zero
	for _, l := range lots {
		if l.Weight.IsNegative() {
			return nil, Reconciliation{}, apperr.Validation("lot %d has a negative entitlement", l.LotNumber)
		}
		total = total.Add(l.Weight)
	}
	if !total.IsPositive() {
		return nil, Reconciliation{}, apperr.Validation("total entitlement must be greater than zero")
	}

	budget := decimal.NewFromInt(budgetCents)
	out := make([]Allocation, len(lots))
	remainders := make([]decimal.Decimal, len(lots))
	var floors int64
	for i, l := range lots {
		q, r := budget.Mul(l.Weight).QuoRem(total, 0)
		out[i] = Allocation{LotID: l.LotID, LotNumber: l.LotNumber, AmountCents: q.IntPart()}
		remainders[i] = r
		floors += out[i].AmountCents
	}

	residual := budgetCents - floors
	if residual > 0 {
		order := make([]int, len(lots))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return remainders[b].Cmp(remainders[a])
		})
		for _, i := range order[:residual] {
			out[i].AmountCents++
		}
	}

	return out, Reconciliation{
		BudgetCents:    budgetCents,
		AllocatedCents: floors + residual,
		ResidualCents:  residual,
		Note:           reconciliationNote(residual),
	}, nil
}

func reconciliationNote(residual int64) string {
	switch residual {
	case 0:
		return "allocations divide evenly; no rounding adjustment"
	case 1:
		return "1 cent allocated to lot with largest remainder"
	default:
		return fmt.Sprintf("%d cents allocated to lots with largest remainders", residual)
	}
}
