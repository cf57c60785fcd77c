package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharge_StepCap(t *testing.T) {
	m, err := NewMeter(DefaultCaps())
	require.NoError(t, err)

	m.BeginStep()
	require.NoError(t, m.Charge(60))
	err = m.Charge(41)
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
	assert.Equal(t, 60, m.Used(), "failed charge must not consume budget")

	m.BeginStep()
	assert.NoError(t, m.Charge(41))
	assert.Equal(t, 101, m.Used())
}

func TestCharge_TotalCap(t *testing.T) {
	m, err := NewMeter(Caps{StepCap: 100, TotalCap: 2000})
	require.NoError(t, err)
	for i := 0; i < 19; i++ {
		m.BeginStep()
		require.NoError(t, m.Charge(100))
	}
	m.BeginStep()
	require.NoError(t, m.Charge(90))
	require.Equal(t, 1990, m.Used())

	m.BeginStep()
	err = m.Charge(30)
	assert.ErrorIs(t, err, ErrTotalBudgetExceeded)
	assert.Equal(t, 10, m.Remaining())
	assert.NoError(t, m.Charge(10))
	assert.ErrorIs(t, m.Charge(1), ErrTotalBudgetExceeded)
}

func TestCharge_Monotonic(t *testing.T) {
	m, err := NewMeter(Caps{StepCap: 7, TotalCap: 50})
	require.NoError(t, err)
	prev := 0
	for i := 0; i < 40; i++ {
		if i%3 == 0 {
			m.BeginStep()
		}
		_ = m.Charge(i % 5)
		used := m.Used()
		assert.GreaterOrEqual(t, used, prev)
		assert.LessOrEqual(t, used, 50)
		assert.LessOrEqual(t, m.State().StepUsed, 7)
		prev = used
	}
}

func TestCharge_Deterministic(t *testing.T) {
	a, _ := NewMeter(Caps{StepCap: 10, TotalCap: 10})
	b, _ := NewMeter(Caps{StepCap: 10, TotalCap: 10})
	for _, n := range []int{4, 4, 4, 2} {
		assert.Equal(t, a.Charge(n) == nil, b.Charge(n) == nil)
	}
	assert.Equal(t, a.State(), b.State())
}

func TestCaps_Validate(t *testing.T) {
	assert.NoError(t, DefaultCaps().Validate())
	assert.Error(t, Caps{StepCap: 0, TotalCap: 10}.Validate())
	assert.Error(t, Caps{StepCap: 20, TotalCap: 10}.Validate())
	_, err := NewMeter(Caps{})
	assert.Error(t, err)
}

func TestCharge_Negative(t *testing.T) {
	m, _ := NewMeter(DefaultCaps())
	assert.Error(t, m.Charge(-1))
}

func TestWordsAndTruncate(t *testing.T) {
	assert.Equal(t, 0, Words(""))
	assert.Equal(t, 5, Words("one two  three", "\tfour\nfive"))

	s := "the quick brown fox jumps over the lazy dog"
	got := Truncate(s, 4)
	assert.Equal(t, "the quick brown fox…", got)
	assert.Equal(t, 4, Words(got))
	assert.Equal(t, s, Truncate(s, 100))
	assert.Equal(t, "", Truncate(s, 0))
}
