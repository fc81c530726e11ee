// Package plans is the static registry of fundraiser plans: collection
// ceiling, opening fee and withdrawal delay per plan code.
package plans

import (
	"fmt"

	"github.com/AmazingeventParis/Kooki/internal/models"
)

// Ceiling is the maximum cumulative amount a plan allows a fundraiser to
// collect. Unbounded plans carry no numeric limit; a sentinel value is
// deliberately not used.
type Ceiling struct {
	Unbounded bool
	Amount    int64
}

// Bounded returns a ceiling capped at amount (minor units).
func Bounded(amount int64) Ceiling { return Ceiling{Amount: amount} }

// Unbounded is the ceiling of plans without a collection limit.
func Unbounded() Ceiling { return Ceiling{Unbounded: true} }

// Exceeded reports whether total has reached the ceiling.
func (c Ceiling) Exceeded(total int64) bool {
	return !c.Unbounded && total >= c.Amount
}

// Remaining returns the headroom left under the ceiling. ok is false for
// unbounded ceilings.
func (c Ceiling) Remaining(current int64) (remaining int64, ok bool) {
	if c.Unbounded {
		return 0, false
	}
	if c.Exceeded(current) {
		return 0, true
	}
	return c.Amount - current, true
}

// Plan describes a fundraiser plan. Price is the one-time opening fee in
// minor units; a negative price means "contact us" and the plan cannot be
// activated through checkout.
type Plan struct {
	Code              string
	Name              string
	Kind              string
	Ceiling           Ceiling
	Price             int64
	WithdrawDelayDays int
}

// Free reports whether the plan has no opening fee.
func (p Plan) Free() bool { return p.Price == 0 }

// Purchasable reports whether the opening fee can be paid through checkout.
func (p Plan) Purchasable() bool { return p.Price > 0 }

var registry = map[string]Plan{
	"PERSONAL_FREE": {
		Code: "PERSONAL_FREE", Name: "Gratuit", Kind: models.FundraiserKindPersonal,
		Ceiling: Bounded(500_00), Price: 0, WithdrawDelayDays: 14,
	},
	"PERSONAL_STANDARD": {
		Code: "PERSONAL_STANDARD", Name: "Standard", Kind: models.FundraiserKindPersonal,
		Ceiling: Bounded(10_000_00), Price: 9_00,
	},
	"PERSONAL_PLUS": {
		Code: "PERSONAL_PLUS", Name: "Plus", Kind: models.FundraiserKindPersonal,
		Ceiling: Bounded(25_000_00), Price: 19_00,
	},
	"PERSONAL_PREMIUM": {
		Code: "PERSONAL_PREMIUM", Name: "Premium", Kind: models.FundraiserKindPersonal,
		Ceiling: Unbounded(), Price: 39_00,
	},
	"ASSO_FREE": {
		Code: "ASSO_FREE", Name: "Gratuit", Kind: models.FundraiserKindAssociation,
		Ceiling: Bounded(2_000_00), Price: 0,
	},
	"ASSO_STARTER": {
		Code: "ASSO_STARTER", Name: "Starter", Kind: models.FundraiserKindAssociation,
		Ceiling: Bounded(50_000_00), Price: 79_00,
	},
	"ASSO_PRO": {
		Code: "ASSO_PRO", Name: "Pro", Kind: models.FundraiserKindAssociation,
		Ceiling: Bounded(250_000_00), Price: 249_00,
	},
	"ASSO_IMPACT": {
		Code: "ASSO_IMPACT", Name: "Impact", Kind: models.FundraiserKindAssociation,
		Ceiling: Bounded(1_000_000_00), Price: 599_00,
	},
	"ASSO_ENTERPRISE": {
		Code: "ASSO_ENTERPRISE", Name: "Enterprise", Kind: models.FundraiserKindAssociation,
		Ceiling: Unbounded(), Price: -1,
	},
}

// PlanFor looks up a plan by code.
func PlanFor(code string) (Plan, error) {
	p, ok := registry[code]
	if !ok {
		return Plan{}, fmt.Errorf("plans: unknown plan code %q", code)
	}
	return p, nil
}

var ordered = []string{
	"PERSONAL_FREE", "PERSONAL_STANDARD", "PERSONAL_PLUS", "PERSONAL_PREMIUM",
	"ASSO_FREE", "ASSO_STARTER", "ASSO_PRO", "ASSO_IMPACT", "ASSO_ENTERPRISE",
}

// All returns every registered plan, personal plans first.
func All() []Plan {
	out := make([]Plan, 0, len(ordered))
	for _, code := range ordered {
		out = append(out, registry[code])
	}
	return out
}
