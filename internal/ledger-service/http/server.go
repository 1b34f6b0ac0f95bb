package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/dto"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/ledger"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/lifecycle"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/wager"
	"github.com/radieske/horse-race-ledger/internal/notification/inbox"
	"github.com/radieske/horse-race-ledger/internal/shared/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// API expõe os endpoints REST do ledger de corridas
type API struct {
	Ledger    *ledger.Service
	Wagers    *wager.Service
	Catalog   *catalog.Service
	Lifecycle *lifecycle.Manager
	Log       *zap.Logger

	WS      http.HandlerFunc // opcional: /ws
	Inbox   InboxReader      // opcional: caixa de notificações
	Metrics *metrics.Ledger  // opcional
}

// InboxReader lê as notificações gravadas pelo notification-worker.
type InboxReader interface {
	Recent(ctx context.Context, userID string, limit int64) ([]inbox.Notification, error)
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if a.Metrics != nil {
		r.Use(func(next http.Handler) http.Handler { return a.Metrics.Instrument(routePattern, next) })
	}

	r.Post("/v1/accounts", a.ensureAccount)                         // Cria ou devolve a conta
	r.Get("/v1/accounts/{userId}", a.getAccount)                    // Saldo
	r.Get("/v1/accounts/{userId}/transactions", a.listTransactions) // Extrato
	r.Post("/v1/accounts/{userId}/deposit", a.deposit)              // Depósito
	r.Post("/v1/accounts/{userId}/withdraw", a.withdraw)            // Saque
	r.Post("/v1/bets", a.placeBet)                                  // Aposta
	r.Get("/v1/bets/{id}", a.getBet)                                // Aposta + transições
	r.Get("/v1/users/{userId}/bets", a.listUserBets)                // Apostas do usuário
	r.Get("/v1/races", a.listRaces)                                 // ?status=scheduled,in_progress
	r.Post("/v1/races", a.createRace)                               // Criação em lote (ingestão)
	r.Get("/v1/races/{id}", a.getRaceCard)                          // Race card
	r.Get("/v1/races/{id}/stats", a.raceStats)                      // Estatísticas de apostas
	r.Post("/v1/races/{id}/cancel", a.cancelRace)                   // Cancelamento pelo operador
	r.Post("/v1/races/{id}/settle", a.settleRace)                   // Vencedor declarado pelo operador
	r.Put("/v1/participants/{id}/odds", a.updateOdds)               // Troca de odd
	r.Post("/v1/settlement/sweep", a.sweep)                         // Sweep sob demanda
	if a.Inbox != nil {
		r.Get("/v1/users/{userId}/notifications", a.listNotifications)
	}
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// routePattern devolve o padrão chi (ex: /v1/bets/{id}) para não explodir a cardinalidade.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError traduz os erros de domínio para status HTTP
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadJSON) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "validation failed", Fields: fields})
		return
	}

	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		a.Log.Error("request failed", zap.String("route", routePattern(r)), zap.Error(err))
		writeJSON(w, status, dto.ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}

// StatusOf mapeia os sentinelas do domínio para o status HTTP.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrRaceNotOpen),
		errors.Is(err, model.ErrAlreadySettled),
		errors.Is(err, model.ErrOddsLocked),
		errors.Is(err, model.ErrRaceNotStarted):
		return http.StatusConflict
	case errors.Is(err, model.ErrStakeTooSmall),
		errors.Is(err, model.ErrInvalidOdds),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidBetType),
		errors.Is(err, model.ErrInvalidUser),
		errors.Is(err, model.ErrInvalidRace),
		errors.Is(err, model.ErrDuplicateLane),
		errors.Is(err, model.ErrNoParticipants):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrRaceNotFound),
		errors.Is(err, model.ErrAccountNotFound),
		errors.Is(err, model.ErrParticipantNotFound),
		errors.Is(err, model.ErrBetNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode lê o corpo JSON e aplica a validação do DTO
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return dto.Validate(v)
}

var errBadJSON = errors.New("bad json")

// page lê ?limit=&offset= com default e teto.
func page(r *http.Request) (limit, offset int) {
	limit, offset = defaultPageSize, 0
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, maxPageSize)
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}
