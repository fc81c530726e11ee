// Package tip computes the voluntary platform contribution suggested to
// donors. All amounts are in minor currency units.
package tip

// MaxCents caps the tip at 10 EUR regardless of donation size.
const MaxCents int64 = 10_00

// Suggestion returns the suggested tip for a donation: ~5% of the amount,
// rounded up to the nearest 50 cents, capped at MaxCents.
func Suggestion(donationCents int64) int64 {
	if donationCents <= 0 {
		return 0
	}
	raw := donationCents * 5 // 5% expressed over 100
	rounded := ((raw + 100*50 - 1) / (100 * 50)) * 50
	if rounded > MaxCents {
		return MaxCents
	}
	return rounded
}

// Validate clamps a donor-supplied tip to [0, MaxCents].
func Validate(tipCents int64) int64 {
	if tipCents < 0 {
		return 0
	}
	if tipCents > MaxCents {
		return MaxCents
	}
	return tipCents
}
