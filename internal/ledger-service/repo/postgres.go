package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

//go:embed schema.sql
var schemaSQL string

// Migrate cria as tabelas do ledger se ainda não existirem.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// Postgres implementa Store sobre database/sql + lib/pq.
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório do ledger
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// WithTx executa fn numa transação; qualquer erro faz rollback
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct{ tx *sql.Tx }

type scanner interface {
	Scan(dest ...any) error
}

const accountCols = `id, user_id, balance, created_at, updated_at`

func scanAccount(s scanner) (model.Account, error) {
	var a model.Account
	err := s.Scan(&a.ID, &a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, notFound(err, model.ErrAccountNotFound)
}

func (t *pgTx) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE user_id=$1`, userID))
}

// LockAccount trava a linha da conta (lock pessimista) até o commit
func (t *pgTx) LockAccount(ctx context.Context, userID string) (model.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE user_id=$1 FOR UPDATE`, userID))
}

// InsertAccount é idempotente por user_id; inserted=false quando outra transação
// criou a conta primeiro (ON CONFLICT não afeta nenhuma linha).
func (t *pgTx) InsertAccount(ctx context.Context, a model.Account) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, balance, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO NOTHING`,
		a.ID, a.UserID, a.Balance, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance=$1, updated_at=$2 WHERE id=$3`, balance, at, accountID)
	if err != nil {
		return err
	}
	return expectOne(res, model.ErrAccountNotFound)
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr model.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions
		  (id, account_id, user_id, kind, amount, balance_after, bet_id, memo, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tr.ID, tr.AccountID, tr.UserID, string(tr.Kind), tr.Amount, tr.BalanceAfter,
		nullString(tr.BetID), tr.Memo, tr.CreatedAt)
	return err
}

func (t *pgTx) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, account_id, user_id, kind, amount, balance_after, bet_id, memo, created_at
		FROM ledger_transactions
		WHERE user_id=$1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, userID, limitOrAll(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var tr model.Transaction
		var kind string
		var betID sql.NullString
		if err := rows.Scan(&tr.ID, &tr.AccountID, &tr.UserID, &kind, &tr.Amount, &tr.BalanceAfter, &betID, &tr.Memo, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Kind = model.TxKind(kind)
		tr.BetID = stringPtr(betID)
		out = append(out, tr)
	}
	return out, rows.Err()
}

const raceCols = `id, name, scheduled_start, status, winner_id, created_at, settled_at`

func scanRace(s scanner) (model.Race, error) {
	var r model.Race
	var status string
	var winner sql.NullString
	var settled sql.NullTime
	err := s.Scan(&r.ID, &r.Name, &r.ScheduledStart, &status, &winner, &r.CreatedAt, &settled)
	if err = notFound(err, model.ErrRaceNotFound); err != nil {
		return r, err
	}
	r.Status = model.RaceStatus(status)
	r.WinnerID = stringPtr(winner)
	if settled.Valid {
		ts := settled.Time
		r.SettledAt = &ts
	}
	return r, nil
}

func (t *pgTx) queryRaces(ctx context.Context, q string, args ...any) ([]model.Race, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) GetRace(ctx context.Context, raceID string) (model.Race, error) {
	return scanRace(t.tx.QueryRowContext(ctx, `SELECT `+raceCols+` FROM races WHERE id=$1`, raceID))
}

// LockRace é o ponto de serialização de liquidação/cancelamento por corrida
func (t *pgTx) LockRace(ctx context.Context, raceID string) (model.Race, error) {
	return scanRace(t.tx.QueryRowContext(ctx, `SELECT `+raceCols+` FROM races WHERE id=$1 FOR UPDATE`, raceID))
}

func (t *pgTx) FindRace(ctx context.Context, name string, start time.Time) (model.Race, error) {
	return scanRace(t.tx.QueryRowContext(ctx,
		`SELECT `+raceCols+` FROM races WHERE name=$1 AND scheduled_start=$2`, name, start))
}

func (t *pgTx) InsertRace(ctx context.Context, r model.Race) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO races (id, name, scheduled_start, status, winner_id, created_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.Name, r.ScheduledStart, string(r.Status), nullString(r.WinnerID), r.CreatedAt, nullTime(r.SettledAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: race %q at %s already exists", model.ErrInvalidRace, r.Name, r.ScheduledStart)
	}
	return err
}

func (t *pgTx) UpdateRace(ctx context.Context, r model.Race) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE races SET status=$1, winner_id=$2, settled_at=$3 WHERE id=$4`,
		string(r.Status), nullString(r.WinnerID), nullTime(r.SettledAt), r.ID)
	if err != nil {
		return err
	}
	return expectOne(res, model.ErrRaceNotFound)
}

func (t *pgTx) ListRaces(ctx context.Context, statuses []model.RaceStatus) ([]model.Race, error) {
	if len(statuses) == 0 {
		return t.queryRaces(ctx, `SELECT `+raceCols+` FROM races ORDER BY scheduled_start, id`)
	}
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	return t.queryRaces(ctx,
		`SELECT `+raceCols+` FROM races WHERE status = ANY($1) ORDER BY scheduled_start, id`, pq.Array(ss))
}

// ListRacesStartedBy lista corridas não terminais com largada <= at
func (t *pgTx) ListRacesStartedBy(ctx context.Context, at time.Time) ([]model.Race, error) {
	return t.queryRaces(ctx, `
		SELECT `+raceCols+` FROM races
		WHERE status IN ('scheduled','in_progress') AND scheduled_start <= $1
		ORDER BY scheduled_start, id`, at)
}

const participantCols = `id, race_id, lane, horse_name, jockey, odds, created_at`

func scanParticipant(s scanner) (model.Participant, error) {
	var p model.Participant
	err := s.Scan(&p.ID, &p.RaceID, &p.Lane, &p.HorseName, &p.Jockey, &p.Odds, &p.CreatedAt)
	return p, notFound(err, model.ErrParticipantNotFound)
}

func (t *pgTx) InsertParticipant(ctx context.Context, p model.Participant) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO participants (id, race_id, lane, horse_name, jockey, odds, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.RaceID, p.Lane, p.HorseName, p.Jockey, p.Odds, p.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrDuplicateLane
	}
	return err
}

func (t *pgTx) GetParticipant(ctx context.Context, participantID string) (model.Participant, error) {
	return scanParticipant(t.tx.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE id=$1`, participantID))
}

func (t *pgTx) ListParticipants(ctx context.Context, raceID string) ([]model.Participant, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE race_id=$1 ORDER BY lane`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateOdds(ctx context.Context, participantID string, odds decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE participants SET odds=$1 WHERE id=$2`, odds, participantID)
	if err != nil {
		return err
	}
	return expectOne(res, model.ErrParticipantNotFound)
}

func (t *pgTx) CountBetsOnParticipant(ctx context.Context, participantID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bets WHERE participant_id=$1`, participantID).Scan(&n)
	return n, err
}

const betCols = `id, user_id, race_id, participant_id, bet_type, stake, potential_payout, status, created_at, settled_at`

func scanBet(s scanner) (model.Bet, error) {
	var b model.Bet
	var bt, st string
	var settled sql.NullTime
	err := s.Scan(&b.ID, &b.UserID, &b.RaceID, &b.ParticipantID, &bt, &b.Stake, &b.PotentialPayout, &st, &b.CreatedAt, &settled)
	if err = notFound(err, model.ErrBetNotFound); err != nil {
		return b, err
	}
	b.Type = model.BetType(bt)
	b.Status = model.BetStatus(st)
	if settled.Valid {
		ts := settled.Time
		b.SettledAt = &ts
	}
	return b, nil
}

func (t *pgTx) queryBets(ctx context.Context, q string, args ...any) ([]model.Bet, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertBet(ctx context.Context, b model.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, race_id, participant_id, bet_type, stake, potential_payout, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.UserID, b.RaceID, b.ParticipantID, string(b.Type), b.Stake, b.PotentialPayout, string(b.Status), b.CreatedAt)
	return err
}

func (t *pgTx) GetBet(ctx context.Context, betID string) (model.Bet, error) {
	return scanBet(t.tx.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1`, betID))
}

func (t *pgTx) ListBetsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Bet, error) {
	return t.queryBets(ctx,
		`SELECT `+betCols+` FROM bets WHERE user_id=$1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		userID, limitOrAll(limit), offset)
}

func (t *pgTx) ListBetsByRace(ctx context.Context, raceID string) ([]model.Bet, error) {
	return t.queryBets(ctx, `SELECT `+betCols+` FROM bets WHERE race_id=$1 ORDER BY created_at, id`, raceID)
}

// LockActiveBets trava as apostas ativas da corrida para liquidação
func (t *pgTx) LockActiveBets(ctx context.Context, raceID string) ([]model.Bet, error) {
	return t.queryBets(ctx,
		`SELECT `+betCols+` FROM bets WHERE race_id=$1 AND status='active' ORDER BY created_at, id FOR UPDATE`, raceID)
}

// CloseBet só altera apostas ainda ativas; estados terminais nunca reabrem
func (t *pgTx) CloseBet(ctx context.Context, betID string, status model.BetStatus, settledAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bets SET status=$1, settled_at=$2 WHERE id=$3 AND status='active'`,
		string(status), settledAt, betID)
	if err != nil {
		return err
	}
	return expectOne(res, model.ErrBetNotActive)
}

func (t *pgTx) InsertBetTransition(ctx context.Context, tr model.BetTransition) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bet_transitions (bet_id, old_status, new_status, reason, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		tr.BetID, string(tr.OldStatus), string(tr.NewStatus), tr.Reason, tr.CreatedAt)
	return err
}

func (t *pgTx) ListBetTransitions(ctx context.Context, betID string) ([]model.BetTransition, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT bet_id, old_status, new_status, reason, created_at
		FROM bet_transitions WHERE bet_id=$1 ORDER BY id`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BetTransition
	for rows.Next() {
		var tr model.BetTransition
		var oldSt, newSt string
		if err := rows.Scan(&tr.BetID, &oldSt, &newSt, &tr.Reason, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.OldStatus = model.BetStatus(oldSt)
		tr.NewStatus = model.BetStatus(newSt)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

// notFound traduz linha ausente e id que não é UUID (22P02) no sentinel do recurso.
func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) || hasCode(err, "22P02") {
		return sentinel
	}
	return err
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// limitOrAll converte limit<=0 em NULL (LIMIT ALL no Postgres)
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
