package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

// Memory é um Store em memória usado em testes e no modo local.
// Cada WithTx roda isolado sob um mutex global e trabalha sobre uma cópia,
// descartada se fn falhar.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

type memData struct {
	accounts     map[string]model.Account // por userID
	transactions []model.Transaction
	races        map[string]model.Race
	participants map[string]model.Participant
	bets         map[string]model.Bet
	betSeq       []string // ordem de inserção
	transitions  []model.BetTransition
}

func newMemData() *memData {
	return &memData{
		accounts:     make(map[string]model.Account),
		races:        make(map[string]model.Race),
		participants: make(map[string]model.Participant),
		bets:         make(map[string]model.Bet),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.races {
		c.races[k] = v
	}
	for k, v := range d.participants {
		c.participants[k] = v
	}
	for k, v := range d.bets {
		c.bets[k] = v
	}
	c.transactions = append([]model.Transaction(nil), d.transactions...)
	c.betSeq = append([]string(nil), d.betSeq...)
	c.transitions = append([]model.BetTransition(nil), d.transitions...)
	return c
}

type memTx struct{ d *memData }

func (t *memTx) GetAccount(_ context.Context, userID string) (model.Account, error) {
	a, ok := t.d.accounts[userID]
	if !ok {
		return model.Account{}, model.ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) LockAccount(ctx context.Context, userID string) (model.Account, error) {
	return t.GetAccount(ctx, userID)
}

func (t *memTx) InsertAccount(_ context.Context, a model.Account) (bool, error) {
	if _, ok := t.d.accounts[a.UserID]; ok {
		return false, nil
	}
	t.d.accounts[a.UserID] = a
	return true, nil
}

func (t *memTx) UpdateBalance(_ context.Context, accountID string, balance decimal.Decimal, at time.Time) error {
	for uid, a := range t.d.accounts {
		if a.ID == accountID {
			a.Balance = balance
			a.UpdatedAt = at
			t.d.accounts[uid] = a
			return nil
		}
	}
	return model.ErrAccountNotFound
}

func (t *memTx) InsertTransaction(_ context.Context, tr model.Transaction) error {
	t.d.transactions = append(t.d.transactions, tr)
	return nil
}

func (t *memTx) ListTransactions(_ context.Context, userID string, limit, offset int) ([]model.Transaction, error) {
	var out []model.Transaction
	for i := len(t.d.transactions) - 1; i >= 0; i-- {
		if t.d.transactions[i].UserID == userID {
			out = append(out, t.d.transactions[i])
		}
	}
	return page(out, limit, offset), nil
}

func (t *memTx) GetRace(_ context.Context, raceID string) (model.Race, error) {
	r, ok := t.d.races[raceID]
	if !ok {
		return model.Race{}, model.ErrRaceNotFound
	}
	return r, nil
}

func (t *memTx) LockRace(ctx context.Context, raceID string) (model.Race, error) {
	return t.GetRace(ctx, raceID)
}

func (t *memTx) FindRace(_ context.Context, name string, start time.Time) (model.Race, error) {
	for _, r := range t.d.races {
		if r.Name == name && r.ScheduledStart.Equal(start) {
			return r, nil
		}
	}
	return model.Race{}, model.ErrRaceNotFound
}

func (t *memTx) InsertRace(_ context.Context, r model.Race) error {
	t.d.races[r.ID] = r
	return nil
}

func (t *memTx) UpdateRace(_ context.Context, r model.Race) error {
	if _, ok := t.d.races[r.ID]; !ok {
		return model.ErrRaceNotFound
	}
	t.d.races[r.ID] = r
	return nil
}

func (t *memTx) ListRaces(_ context.Context, statuses []model.RaceStatus) ([]model.Race, error) {
	var out []model.Race
	for _, r := range t.d.races {
		if len(statuses) == 0 || containsStatus(statuses, r.Status) {
			out = append(out, r)
		}
	}
	sortRaces(out)
	return out, nil
}

func (t *memTx) ListRacesStartedBy(_ context.Context, at time.Time) ([]model.Race, error) {
	var out []model.Race
	for _, r := range t.d.races {
		if !r.Status.Terminal() && !r.ScheduledStart.After(at) {
			out = append(out, r)
		}
	}
	sortRaces(out)
	return out, nil
}

func (t *memTx) InsertParticipant(_ context.Context, p model.Participant) error {
	for _, o := range t.d.participants {
		if o.RaceID == p.RaceID && (o.Lane == p.Lane || o.HorseName == p.HorseName) {
			return model.ErrDuplicateLane
		}
	}
	t.d.participants[p.ID] = p
	return nil
}

func (t *memTx) GetParticipant(_ context.Context, participantID string) (model.Participant, error) {
	p, ok := t.d.participants[participantID]
	if !ok {
		return model.Participant{}, model.ErrParticipantNotFound
	}
	return p, nil
}

func (t *memTx) ListParticipants(_ context.Context, raceID string) ([]model.Participant, error) {
	var out []model.Participant
	for _, p := range t.d.participants {
		if p.RaceID == raceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lane < out[j].Lane })
	return out, nil
}

func (t *memTx) UpdateOdds(_ context.Context, participantID string, odds decimal.Decimal) error {
	p, ok := t.d.participants[participantID]
	if !ok {
		return model.ErrParticipantNotFound
	}
	p.Odds = odds
	t.d.participants[participantID] = p
	return nil
}

func (t *memTx) CountBetsOnParticipant(_ context.Context, participantID string) (int, error) {
	n := 0
	for _, b := range t.d.bets {
		if b.ParticipantID == participantID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertBet(_ context.Context, b model.Bet) error {
	t.d.bets[b.ID] = b
	t.d.betSeq = append(t.d.betSeq, b.ID)
	return nil
}

func (t *memTx) GetBet(_ context.Context, betID string) (model.Bet, error) {
	b, ok := t.d.bets[betID]
	if !ok {
		return model.Bet{}, model.ErrBetNotFound
	}
	return b, nil
}

func (t *memTx) ListBetsByUser(_ context.Context, userID string, limit, offset int) ([]model.Bet, error) {
	var out []model.Bet
	for i := len(t.d.betSeq) - 1; i >= 0; i-- {
		if b := t.d.bets[t.d.betSeq[i]]; b.UserID == userID {
			out = append(out, b)
		}
	}
	return page(out, limit, offset), nil
}

func (t *memTx) ListBetsByRace(_ context.Context, raceID string) ([]model.Bet, error) {
	var out []model.Bet
	for _, id := range t.d.betSeq {
		if b := t.d.bets[id]; b.RaceID == raceID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) LockActiveBets(ctx context.Context, raceID string) ([]model.Bet, error) {
	all, _ := t.ListBetsByRace(ctx, raceID)
	var out []model.Bet
	for _, b := range all {
		if b.Status == model.BetActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) CloseBet(_ context.Context, betID string, status model.BetStatus, settledAt time.Time) error {
	b, ok := t.d.bets[betID]
	if !ok {
		return model.ErrBetNotFound
	}
	if b.Status != model.BetActive {
		return model.ErrBetNotActive
	}
	b.Status = status
	b.SettledAt = &settledAt
	t.d.bets[betID] = b
	return nil
}

func (t *memTx) InsertBetTransition(_ context.Context, tr model.BetTransition) error {
	t.d.transitions = append(t.d.transitions, tr)
	return nil
}

func (t *memTx) ListBetTransitions(_ context.Context, betID string) ([]model.BetTransition, error) {
	var out []model.BetTransition
	for _, tr := range t.d.transitions {
		if tr.BetID == betID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func containsStatus(list []model.RaceStatus, s model.RaceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortRaces(rs []model.Race) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ScheduledStart.Equal(rs[j].ScheduledStart) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].ScheduledStart.Before(rs[j].ScheduledStart)
	})
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
