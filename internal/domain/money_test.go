package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPercentage_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"zero", 0, false},
		{"typical move", 6.5, false},
		{"lower bound", -100, false},
		{"upper bound", 1000, false},
		{"below lower bound", -100.01, true},
		{"above upper bound", 1000.01, true},
		{"total loss plus", -150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPercentage(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, ErrInvalid))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.value, p.Value())
			}
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := NewMoney(3.10)
	b := NewMoney(2.90)

	sum := a.Add(b)
	assert.Equal(t, "$6.00", sum.String())
	assert.InDelta(t, 6.0, sum.Float64(), 1e-9)

	diff := a.Sub(b)
	assert.Equal(t, "$0.20", diff.String())

	// No binary float drift: 0.1 + 0.2 renders exactly.
	assert.Equal(t, "$0.30", NewMoney(0.1).Add(NewMoney(0.2)).String())

	assert.True(t, a.GreaterThan(b))
	assert.True(t, b.LessThan(a))
	assert.Equal(t, int64(600), sum.Cents())
}

func TestMoney_FromCents(t *testing.T) {
	m := MoneyFromCents(2512)
	assert.Equal(t, "$25.12", m.String())
	assert.Equal(t, int64(2512), m.Cents())
}

func TestStrike_KeyNormalization(t *testing.T) {
	a := NewStrike(150)
	b, err := NewStrikeFromString("150.0000")
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))
	assert.True(t, NewStrike(145).LessThan(a))
	assert.InDelta(t, 2.5, NewStrike(147.5).DistanceFrom(150), 1e-9)
}
