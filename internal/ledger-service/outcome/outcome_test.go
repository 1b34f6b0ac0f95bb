package outcome

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

func field(odds ...string) []model.Participant {
	ps := make([]model.Participant, len(odds))
	for i, o := range odds {
		ps[i] = model.Participant{
			ID:     string(rune('a' + i)),
			RaceID: "r1",
			Lane:   i + 1,
			Odds:   decimal.RequireFromString(o),
		}
	}
	return ps
}

func TestOperator(t *testing.T) {
	ps := field("2.0", "3.0")

	got, err := Operator("b").Pick(ps)
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = Operator("z").Pick(ps)
	assert.ErrorIs(t, err, model.ErrParticipantNotFound)

	_, err = Operator("a").Pick(nil)
	assert.ErrorIs(t, err, model.ErrNoParticipants)
}

func TestWeightedRandomIsDeterministicForSeed(t *testing.T) {
	ps := field("1.5", "3.0", "6.0", "12.0")

	run := func() []string {
		w := NewWeightedRandom(rand.NewSource(42))
		var out []string
		for i := 0; i < 20; i++ {
			id, err := w.Pick(ps)
			require.NoError(t, err)
			out = append(out, id)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestWeightedRandomIgnoresInputOrder(t *testing.T) {
	ps := field("1.5", "3.0", "6.0")
	reversed := []model.Participant{ps[2], ps[1], ps[0]}

	a := NewWeightedRandom(rand.NewSource(7))
	b := NewWeightedRandom(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		x, _ := a.Pick(ps)
		y, _ := b.Pick(reversed)
		assert.Equal(t, x, y)
	}
}

func TestWeightedRandomFavoursLowOdds(t *testing.T) {
	ps := field("1.5", "15.0")
	w := NewWeightedRandom(rand.NewSource(1))
	wins := map[string]int{}
	for i := 0; i < 2000; i++ {
		id, err := w.Pick(ps)
		require.NoError(t, err)
		wins[id]++
	}
	// chance esperada do favorito: (1/1.5)/((1/1.5)+(1/15)) ≈ 0.909
	assert.InDelta(t, 0.909, float64(wins["a"])/2000, 0.04)
}

func TestWeightedRandomErrors(t *testing.T) {
	w := NewWeightedRandom(rand.NewSource(1))
	_, err := w.Pick(nil)
	assert.ErrorIs(t, err, model.ErrNoParticipants)

	_, err = w.Pick(field("0.5"))
	assert.ErrorIs(t, err, model.ErrInvalidOdds)
}

func TestProbabilities(t *testing.T) {
	p := Probabilities(field("2.0", "2.0", "4.0"))
	assert.InDelta(t, 0.4, p["a"], 1e-9)
	assert.InDelta(t, 0.4, p["b"], 1e-9)
	assert.InDelta(t, 0.2, p["c"], 1e-9)
}
