package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSubunits(t *testing.T) {
	cases := map[string]int64{
		"5000":    500000,
		"1250.5":  125050,
		"0.01":    1,
		" 99.99 ": 9999,
	}
	for in, want := range cases {
		got, err := ToSubunits(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestToSubunitsRejects(t *testing.T) {
	_, err := ToSubunits("0")
	assert.ErrorIs(t, err, ErrNonPositive)

	_, err = ToSubunits("-10")
	assert.ErrorIs(t, err, ErrNonPositive)

	_, err = ToSubunits("10.005")
	assert.ErrorIs(t, err, ErrSubunitFraction)

	_, err = ToSubunits("ten")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFromSubunits(t *testing.T) {
	assert.Equal(t, "5000.00", FromSubunits(500000))
	assert.Equal(t, "0.01", FromSubunits(1))
}
