package tip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestion(t *testing.T) {
	tests := []struct {
		name     string
		donation int64
		want     int64
	}{
		{"zero donation", 0, 0},
		{"negative donation", -500, 0},
		{"rounds up to 50 cents", 2500, 150},
		{"exactly at cap", 20000, 1000},
		{"large donation stays capped", 1_000_000, 1000},
		{"small donation", 100, 50},
		{"mid donation", 10_000, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggestion(tt.donation))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.Equal(t, int64(0), Validate(-50))
	assert.Equal(t, int64(1000), Validate(5000))
	assert.Equal(t, int64(300), Validate(300))
	assert.Equal(t, int64(0), Validate(0))
	assert.Equal(t, int64(1000), Validate(1000))
}
