package importer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	"github.com/radieske/horse-race-ledger/internal/race-ingest/feed"
)

const (
	ResultCreated  = "created"
	ResultExisting = "existing"
	ResultFailed   = "failed"
)

type Creator interface {
	CreateRace(ctx context.Context, in catalog.RaceInput) (catalog.RaceCard, bool, error)
}

// Report resume uma rodada de importação.
type Report struct {
	Source   string
	Created  int
	Existing int
	Failed   int
}

// Importer busca o catálogo e grava cada corrida pelo catálogo do ledger.
// Corrida inválida é logada e pulada; as demais seguem.
type Importer struct {
	Source  feed.Source
	Catalog Creator
	Log     *zap.Logger

	OnFetched  func(source string) // métricas
	OnImported func(result string) // métricas
}

func (im *Importer) Import(ctx context.Context) (Report, error) {
	batch, err := im.Source.Fetch(ctx)
	if err != nil {
		return Report{}, err
	}
	if im.OnFetched != nil {
		im.OnFetched(batch.Source)
	}

	rep := Report{Source: batch.Source}
	for _, r := range batch.Races {
		_, created, err := im.Catalog.CreateRace(ctx, toInput(r))
		result := ResultExisting
		switch {
		case err != nil:
			im.Log.Warn("race import failed", zap.String("name", r.Name), zap.Error(err))
			result = ResultFailed
			rep.Failed++
		case created:
			result = ResultCreated
			rep.Created++
		default:
			rep.Existing++
		}
		if im.OnImported != nil {
			im.OnImported(result)
		}
	}
	im.Log.Info("race import done",
		zap.String("source", rep.Source),
		zap.Int("created", rep.Created),
		zap.Int("existing", rep.Existing),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

// Run importa na hora e depois a cada interval, até ctx encerrar.
func (im *Importer) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := im.Import(ctx); err != nil && ctx.Err() == nil {
			im.Log.Error("race import", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func toInput(r feed.Race) catalog.RaceInput {
	in := catalog.RaceInput{Name: r.Name, ScheduledStart: r.StartTime}
	for i, h := range r.Horses {
		lane := h.Lane
		if lane == 0 {
			lane = i + 1
		}
		in.Participants = append(in.Participants, catalog.ParticipantInput{
			Lane:      lane,
			HorseName: h.Name,
			Jockey:    h.Jockey,
			Odds:      h.Odds,
		})
	}
	return in
}
