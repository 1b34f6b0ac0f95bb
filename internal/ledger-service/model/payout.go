package model

import "github.com/shopspring/decimal"

// PayoutTable define o multiplicador efetivo por tipo de aposta.
// Todas as modalidades escalam com a odd do participante:
//
//	win   = odds
//	place = odds × Place
//	show  = odds × Show
//
// Só place e show são configuráveis; um único valor da tabela vale para todo o serviço.
type PayoutTable struct {
	Place decimal.Decimal
	Show  decimal.Decimal
}

// DefaultPayoutTable: place 0.6, show 0.4.
func DefaultPayoutTable() PayoutTable {
	return PayoutTable{
		Place: decimal.RequireFromString("0.6"),
		Show:  decimal.RequireFromString("0.4"),
	}
}

// Multiplier retorna o multiplicador efetivo aplicado ao stake.
func (t PayoutTable) Multiplier(bt BetType, odds decimal.Decimal) (decimal.Decimal, error) {
	var f decimal.Decimal
	switch bt {
	case BetWin:
		return odds, nil
	case BetPlace:
		f = t.Place
	case BetShow:
		f = t.Show
	default:
		return decimal.Zero, ErrInvalidBetType
	}
	return odds.Mul(f), nil
}

// PotentialPayout = round2(stake × multiplier).
func (t PayoutTable) PotentialPayout(bt BetType, stake, odds decimal.Decimal) (decimal.Decimal, error) {
	m, err := t.Multiplier(bt, odds)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundMoney(stake.Mul(m)), nil
}

// RoundMoney arredonda para centavos.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
