package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/dto"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/ledger"
	lt "github.com/radieske/horse-race-ledger/internal/ledger-service/ledgertest"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/lifecycle"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/outcome"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/settlement"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/wager"
	"github.com/radieske/horse-race-ledger/internal/notification/inbox"
	"github.com/radieske/horse-race-ledger/internal/shared/metrics"
)

var t0 = time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)

type fixture struct {
	store   *repo.Memory
	clock   *lt.Clock
	metrics *metrics.Ledger
	h       http.Handler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := repo.NewMemory()
	clock := lt.NewClock(t0)
	log := zap.NewNop()
	engine := settlement.NewEngine(store, notify.Nop{}, log, clock.Now)
	m := metrics.NewLedger(prometheus.NewRegistry())

	api := &API{
		Ledger: ledger.NewService(store, log, decimal.Zero),
		Wagers: wager.NewService(store, nil, log, wager.Config{
			MinStake: lt.Dec("10"), Payouts: model.DefaultPayoutTable(), Now: clock.Now,
		}),
		Catalog: catalog.NewService(store, nil, nil, log),
		Lifecycle: lifecycle.NewManager(store, engine, outcome.NewWeightedRandom(rand.NewSource(7)), log,
			lifecycle.Config{RaceDuration: 2 * time.Minute, Now: clock.Now}),
		Log:     log,
		Metrics: m,
	}
	return &fixture{store: store, clock: clock, metrics: m, h: api.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) createRace(t *testing.T, start time.Time, odds ...string) dto.RaceCardResponse {
	t.Helper()
	req := dto.CreateRaceRequest{Name: "Derby " + start.Format("15:04"), ScheduledStart: start}
	for i, o := range odds {
		req.Participants = append(req.Participants, dto.ParticipantRequest{
			Lane: i + 1, HorseName: fmt.Sprintf("Horse %d", i+1), Odds: o,
		})
	}
	rec := f.do(t, http.MethodPost, "/v1/races", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[dto.RaceCardResponse](t, rec)
}

func TestAccountEndpoints(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/accounts", dto.EnsureAccountRequest{UserID: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decodeAs[dto.AccountResponse](t, rec).Created)

	rec = f.do(t, http.MethodPost, "/v1/accounts", dto.EnsureAccountRequest{UserID: "alice"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/accounts/alice/deposit", dto.AmountRequest{Amount: "1000", Memo: "top up"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1000.00", decodeAs[dto.TransactionResponse](t, rec).BalanceAfter)

	rec = f.do(t, http.MethodPost, "/v1/accounts/alice/withdraw", dto.AmountRequest{Amount: "2000"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/accounts/alice/withdraw", dto.AmountRequest{Amount: "0.001"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/accounts/alice/withdraw", dto.AmountRequest{Amount: "250.50"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "749.50", decodeAs[dto.AccountResponse](t, rec).Balance)

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeAs[[]dto.TransactionResponse](t, rec)
	require.Len(t, txs, 1)
	assert.Equal(t, "withdraw", txs[0].Kind)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/accounts/bob", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/v1/accounts/bob/deposit", dto.AmountRequest{Amount: "5"}).Code)
}

func TestRequestValidation(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/accounts", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/accounts", dto.EnsureAccountRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "required", decodeAs[dto.ErrorResponse](t, rec).Fields["user_id"])

	rec = f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "alice", ParticipantID: "p", BetType: "exacta", Stake: "10"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "oneof", decodeAs[dto.ErrorResponse](t, rec).Fields["bet_type"])

	rec = f.do(t, http.MethodPost, "/v1/races/x/cancel", dto.CancelRaceRequest{Reason: "rain"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// 1000 de saldo, aposta win 100 @ 3.0: saldo 900, payout 300; vitória leva a 1200.
func TestWagerAndSettlementFlow(t *testing.T) {
	f := setup(t)
	lt.SeedAccount(t, f.store, "alice", "1000")
	card := f.createRace(t, t0.Add(time.Hour), "3.0", "2.0")
	require.Len(t, card.Participants, 2)
	fav, other := card.Participants[0], card.Participants[1]

	// mesma corrida de novo devolve a existente
	rec := f.do(t, http.MethodPost, "/v1/races", dto.CreateRaceRequest{
		Name: card.Name, ScheduledStart: card.ScheduledStart,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, card.RaceID, decodeAs[dto.RaceCardResponse](t, rec).RaceID)

	rec = f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", ParticipantID: fav.ParticipantID, BetType: "win", Stake: "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bet := decodeAs[dto.BetResponse](t, rec)
	assert.Equal(t, "300.00", bet.PotentialPayout)
	assert.Equal(t, "active", bet.Status)
	assert.Equal(t, "900.00", decodeAs[dto.AccountResponse](t, f.do(t, http.MethodGet, "/v1/accounts/alice", nil)).Balance)

	rec = f.do(t, http.MethodPut, "/v1/participants/"+fav.ParticipantID+"/odds", dto.UpdateOddsRequest{Odds: "4.0"})
	assert.Equal(t, http.StatusConflict, rec.Code, "odds locked after a bet")
	rec = f.do(t, http.MethodPut, "/v1/participants/"+other.ParticipantID+"/odds", dto.UpdateOddsRequest{Odds: "2.555"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2.56", decodeAs[dto.ParticipantResponse](t, rec).Odds)

	rec = f.do(t, http.MethodPost, "/v1/races/"+card.RaceID+"/settle", dto.SettleRaceRequest{WinnerID: fav.ParticipantID})
	assert.Equal(t, http.StatusConflict, rec.Code, "race has not started")

	f.clock.Advance(time.Hour)
	rec = f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", ParticipantID: other.ParticipantID, BetType: "show", Stake: "50",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "betting closes at the start")

	rec = f.do(t, http.MethodPost, "/v1/races/"+card.RaceID+"/settle", dto.SettleRaceRequest{WinnerID: fav.ParticipantID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeAs[settlement.Summary](t, rec)
	assert.Equal(t, model.RaceFinished, sum.Outcome)
	assert.Equal(t, 1, sum.Won)
	assert.True(t, sum.Paid.Equal(lt.Dec("300")))

	assert.Equal(t, "1200.00", decodeAs[dto.AccountResponse](t, f.do(t, http.MethodGet, "/v1/accounts/alice", nil)).Balance)

	rec = f.do(t, http.MethodGet, "/v1/bets/"+bet.BetID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[dto.BetResponse](t, rec)
	assert.Equal(t, "won", got.Status)
	require.Len(t, got.History, 2)
	assert.Equal(t, "won", got.History[1].To)

	rec = f.do(t, http.MethodGet, "/v1/users/alice/bets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]dto.BetResponse](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/v1/races/"+card.RaceID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeAs[catalog.Stats](t, rec).TotalBets)

	rec = f.do(t, http.MethodGet, "/v1/races/"+card.RaceID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	race := decodeAs[dto.RaceCardResponse](t, rec)
	assert.Equal(t, "finished", race.Status)
	require.NotNil(t, race.WinnerID)
	assert.Equal(t, fav.ParticipantID, *race.WinnerID)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/races/"+card.RaceID+"/settle", dto.SettleRaceRequest{WinnerID: fav.ParticipantID}).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/races/"+card.RaceID+"/cancel", dto.CancelRaceRequest{Operator: "ops"}).Code)
}

func TestBetRejections(t *testing.T) {
	f := setup(t)
	lt.SeedAccount(t, f.store, "bob", "50")
	card := f.createRace(t, t0.Add(time.Hour), "2.0")
	pid := card.Participants[0].ParticipantID

	cases := []struct {
		name string
		req  dto.PlaceBetRequest
		code int
	}{
		{"below minimum", dto.PlaceBetRequest{UserID: "bob", ParticipantID: pid, BetType: "win", Stake: "5"}, http.StatusUnprocessableEntity},
		{"more than balance", dto.PlaceBetRequest{UserID: "bob", ParticipantID: pid, BetType: "win", Stake: "60"}, http.StatusConflict},
		{"unknown participant", dto.PlaceBetRequest{UserID: "bob", ParticipantID: "nope", BetType: "win", Stake: "10"}, http.StatusNotFound},
		{"no account", dto.PlaceBetRequest{UserID: "carol", ParticipantID: pid, BetType: "win", Stake: "10"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, f.do(t, http.MethodPost, "/v1/bets", tc.req).Code)
		})
	}
	assert.Equal(t, "50.00", decodeAs[dto.AccountResponse](t, f.do(t, http.MethodGet, "/v1/accounts/bob", nil)).Balance)
}

func TestCancelAndSweepEndpoints(t *testing.T) {
	f := setup(t)
	lt.SeedAccount(t, f.store, "alice", "100")
	empty, _ := lt.SeedRace(t, f.store, t0.Add(time.Minute))
	card := f.createRace(t, t0.Add(time.Hour), "2.0", "5.0")

	rec := f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", ParticipantID: card.Participants[1].ParticipantID, BetType: "place", Stake: "40",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/races/"+card.RaceID+"/cancel", dto.CancelRaceRequest{Operator: "ops", Reason: "track flooded"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeAs[settlement.Summary](t, rec)
	assert.Equal(t, model.RaceCancelled, sum.Outcome)
	assert.Equal(t, 1, sum.Refunded)
	assert.Equal(t, "100.00", decodeAs[dto.AccountResponse](t, f.do(t, http.MethodGet, "/v1/accounts/alice", nil)).Balance)

	rec = f.do(t, http.MethodPost, "/v1/races/"+card.RaceID+"/cancel", dto.CancelRaceRequest{Operator: "ops"})
	assert.Equal(t, http.StatusOK, rec.Code, "cancelling twice is a no-op")

	f.clock.Advance(time.Minute)
	rec = f.do(t, http.MethodPost, "/v1/settlement/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeAs[struct {
		Results []lifecycle.SweepResult `json:"results"`
	}](t, rec)
	require.Len(t, res.Results, 1)
	assert.Equal(t, empty.ID, res.Results[0].RaceID)
	assert.Equal(t, lifecycle.ActionCancelled, res.Results[0].Action)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/v1/races/missing/cancel", dto.CancelRaceRequest{Operator: "ops"}).Code)
}

func TestListRacesFilter(t *testing.T) {
	f := setup(t)
	open := f.createRace(t, t0.Add(time.Hour), "2.0")
	gone := f.createRace(t, t0.Add(2*time.Hour), "3.0")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/races/"+gone.RaceID+"/cancel", dto.CancelRaceRequest{Operator: "ops"}).Code)

	rec := f.do(t, http.MethodGet, "/v1/races", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]dto.RaceResponse](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/v1/races?status=scheduled,in_progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	races := decodeAs[[]dto.RaceResponse](t, rec)
	require.Len(t, races, 1)
	assert.Equal(t, open.RaceID, races[0].RaceID)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodGet, "/v1/races?status=bogus", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/races/missing", nil).Code)
}

func TestMetricsUseRoutePattern(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodGet, "/v1/races/abc", nil)
	f.do(t, http.MethodGet, "/v1/races/def", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("GET", "/v1/races/{id}", "404")))
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrInsufficientFunds, http.StatusConflict},
		{fmt.Errorf("settle race r1: %w", model.ErrAlreadySettled), http.StatusConflict},
		{model.ErrOddsLocked, http.StatusConflict},
		{model.ErrStakeTooSmall, http.StatusUnprocessableEntity},
		{model.ErrInvalidOdds, http.StatusUnprocessableEntity},
		{model.ErrBetNotFound, http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

type stubInbox map[string][]inbox.Notification

func (s stubInbox) Recent(_ context.Context, userID string, limit int64) ([]inbox.Notification, error) {
	ns := s[userID]
	if int64(len(ns)) > limit {
		ns = ns[:limit]
	}
	return ns, nil
}

func TestNotificationsRoute(t *testing.T) {
	api := &API{Log: zap.NewNop(), Inbox: stubInbox{
		"alice": {{Type: "bet_won", Message: "Your win bet won! Payout 300.00"}, {Type: "bet_placed", Message: "m"}},
	}}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/alice/notifications?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[[]inbox.Notification](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "bet_won", got[0].Type)
}
