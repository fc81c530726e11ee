package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AmazingeventParis/Kooki/internal/models"
)

func TestPlanFor_Known(t *testing.T) {
	p, err := PlanFor("PERSONAL_FREE")
	assert.NoError(t, err)
	assert.Equal(t, models.FundraiserKindPersonal, p.Kind)
	assert.Equal(t, 14, p.WithdrawDelayDays)
	assert.True(t, p.Free())
	assert.False(t, p.Ceiling.Unbounded)
	assert.Equal(t, int64(500_00), p.Ceiling.Amount)
}

func TestPlanFor_Unknown(t *testing.T) {
	_, err := PlanFor("GOLD")
	assert.Error(t, err)
}

func TestCeiling(t *testing.T) {
	c := Bounded(1000)
	assert.False(t, c.Exceeded(999))
	assert.True(t, c.Exceeded(1000))
	assert.True(t, c.Exceeded(1500))

	remaining, ok := c.Remaining(400)
	assert.True(t, ok)
	assert.Equal(t, int64(600), remaining)

	remaining, ok = c.Remaining(2000)
	assert.True(t, ok)
	assert.Equal(t, int64(0), remaining)

	u := Unbounded()
	assert.False(t, u.Exceeded(1<<60))
	_, ok = u.Remaining(0)
	assert.False(t, ok)
}

func TestEnterpriseNotPurchasable(t *testing.T) {
	p, err := PlanFor("ASSO_ENTERPRISE")
	assert.NoError(t, err)
	assert.False(t, p.Free())
	assert.False(t, p.Purchasable())
	assert.True(t, p.Ceiling.Unbounded)
}

func TestAll_Ordering(t *testing.T) {
	all := All()
	assert.Len(t, all, 9)
	assert.Equal(t, "PERSONAL_FREE", all[0].Code)
	assert.Equal(t, "ASSO_ENTERPRISE", all[8].Code)
}
