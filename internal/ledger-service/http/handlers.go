package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/dto"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/wager"
)

// ensureAccount cria a conta (201) ou devolve a existente (200)
func (a *API) ensureAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.EnsureAccountRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	acc, created, err := a.Ledger.EnsureAccount(r.Context(), req.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := dto.FromAccount(acc)
	resp.Created = created
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.Ledger.Account(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromAccount(acc))
}

// listTransactions retorna o extrato, mais recentes primeiro
func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	txs, err := a.Ledger.History(r.Context(), chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromTransactions(txs))
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	userID, amount, memo, ok := a.amount(w, r)
	if !ok {
		return
	}
	tr, err := a.Ledger.Deposit(r.Context(), userID, amount, memo)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromTransaction(tr))
}

func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	userID, amount, memo, ok := a.amount(w, r)
	if !ok {
		return
	}
	tr, err := a.Ledger.Withdraw(r.Context(), userID, amount, memo)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromTransaction(tr))
}

// amount lê o corpo de depósito/saque; escreve o erro e devolve ok=false se inválido
func (a *API) amount(w http.ResponseWriter, r *http.Request) (string, decimal.Decimal, string, bool) {
	var req dto.AmountRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return "", decimal.Zero, "", false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		a.writeError(w, r, model.ErrInvalidAmount)
		return "", decimal.Zero, "", false
	}
	return chi.URLParam(r, "userId"), amount, req.Memo, true
}

// placeBet valida e aceita a aposta; a resposta já traz o payout congelado
func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		a.writeError(w, r, model.ErrInvalidAmount)
		return
	}
	bet, err := a.Wagers.PlaceWager(r.Context(), wager.Request{
		UserID:        req.UserID,
		ParticipantID: req.ParticipantID,
		Type:          model.BetType(req.BetType),
		Stake:         stake,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromBet(bet))
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bet, err := a.Wagers.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	hist, err := a.Wagers.History(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBet(bet, hist...))
}

func (a *API) listUserBets(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	bets, err := a.Wagers.ListByUser(r.Context(), chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBets(bets))
}

// listNotifications devolve a caixa do usuário, mais recentes primeiro
func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := page(r)
	ns, err := a.Inbox.Recent(r.Context(), chi.URLParam(r, "userId"), int64(limit))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// listRaces aceita ?status=scheduled,in_progress
func (a *API) listRaces(w http.ResponseWriter, r *http.Request) {
	var statuses []model.RaceStatus
	for _, s := range strings.Split(r.URL.Query().Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, model.RaceStatus(s))
		}
	}
	races, err := a.Catalog.ListRaces(r.Context(), statuses...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromRaces(races))
}

// createRace grava corrida + participantes; mesma (nome, largada) devolve a existente com 200
func (a *API) createRace(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRaceRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	in, err := req.ToInput()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	card, created, err := a.Catalog.CreateRace(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := dto.FromRaceCard(card)
	resp.Created = created
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (a *API) getRaceCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.Catalog.RaceCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromRaceCard(card))
}

func (a *API) raceStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.Catalog.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) updateOdds(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOddsRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	odds, err := decimal.NewFromString(req.Odds)
	if err != nil {
		a.writeError(w, r, model.ErrInvalidOdds)
		return
	}
	p, err := a.Catalog.UpdateOdds(r.Context(), chi.URLParam(r, "id"), odds)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromParticipant(p))
}

func (a *API) cancelRace(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelRaceRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sum, err := a.Lifecycle.CancelRace(r.Context(), chi.URLParam(r, "id"), req.Operator, req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) settleRace(w http.ResponseWriter, r *http.Request) {
	var req dto.SettleRaceRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sum, err := a.Lifecycle.SettleRace(r.Context(), chi.URLParam(r, "id"), req.WinnerID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// sweep roda uma passada imediata; falhas por corrida vêm no corpo, não no status
func (a *API) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := a.Lifecycle.Sweep(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": res})
}
