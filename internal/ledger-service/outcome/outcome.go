package outcome

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

// Picker escolhe exatamente um vencedor entre os participantes de uma corrida.
// Sem participantes devolve ErrNoParticipants, o sinal de cancelamento.
type Picker interface {
	Pick(participants []model.Participant) (string, error)
}

// PickerFunc adapta uma função para Picker.
type PickerFunc func(participants []model.Participant) (string, error)

func (f PickerFunc) Pick(ps []model.Participant) (string, error) { return f(ps) }

// Operator repassa o vencedor informado pelo operador.
func Operator(winnerID string) Picker {
	return PickerFunc(func(ps []model.Participant) (string, error) {
		if len(ps) == 0 {
			return "", model.ErrNoParticipants
		}
		for _, p := range ps {
			if p.ID == winnerID {
				return winnerID, nil
			}
		}
		return "", fmt.Errorf("%w: %s is not in race %s", model.ErrParticipantNotFound, winnerID, ps[0].RaceID)
	})
}

// WeightedRandom sorteia o vencedor com probabilidade proporcional a 1/odds.
// A fonte de aleatoriedade é injetada; mesma semente e mesmas odds dão o mesmo resultado.
type WeightedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewWeightedRandom(src rand.Source) *WeightedRandom {
	return &WeightedRandom{rng: rand.New(src)}
}

func (w *WeightedRandom) Pick(ps []model.Participant) (string, error) {
	if len(ps) == 0 {
		return "", model.ErrNoParticipants
	}
	ordered := append([]model.Participant(nil), ps...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Lane < ordered[j].Lane })

	weights := make([]float64, len(ordered))
	total := 0.0
	for i, p := range ordered {
		if err := model.ValidateOdds(p.Odds); err != nil {
			return "", fmt.Errorf("participant %s: %w", p.ID, err)
		}
		weights[i] = 1 / p.Odds.InexactFloat64()
		total += weights[i]
	}

	w.mu.Lock()
	r := w.rng.Float64() * total
	w.mu.Unlock()

	for i, wt := range weights {
		if r < wt {
			return ordered[i].ID, nil
		}
		r -= wt
	}
	// arredondamento de float: fica com o último
	return ordered[len(ordered)-1].ID, nil
}

// Probabilities devolve a chance de vitória por participante (normalizada).
func Probabilities(ps []model.Participant) map[string]float64 {
	out := make(map[string]float64, len(ps))
	total := 0.0
	for _, p := range ps {
		if p.Odds.IsPositive() {
			total += 1 / p.Odds.InexactFloat64()
		}
	}
	if total == 0 {
		return out
	}
	for _, p := range ps {
		if p.Odds.IsPositive() {
			out[p.ID] = (1 / p.Odds.InexactFloat64()) / total
		}
	}
	return out
}
