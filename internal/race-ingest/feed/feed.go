package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SourceHTTP      = "feed"
	SourceSynthetic = "synthetic"
)

// Horse é um participante como vem do fornecedor. Lane 0 = ordem da lista.
type Horse struct {
	Name   string          `json:"name"`
	Jockey string          `json:"jockey"`
	Lane   int             `json:"lane"`
	Odds   decimal.Decimal `json:"odds"`
}

type Race struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Horses    []Horse   `json:"horses"`
}

// Batch é o resultado de uma busca e a origem que o serviu.
type Batch struct {
	Source string
	Races  []Race
}

type Source interface {
	Fetch(ctx context.Context) (Batch, error)
}

var ErrNoFeed = errors.New("race feed url not configured")

// HTTPSource busca o catálogo JSON {"races": [...]} do fornecedor.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Batch, error) {
	if s.URL == "" {
		return Batch{}, ErrNoFeed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Batch{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("fetch race feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Batch{}, fmt.Errorf("fetch race feed: status %d", resp.StatusCode)
	}

	var body struct {
		Races []Race `json:"races"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Batch{}, fmt.Errorf("decode race feed: %w", err)
	}
	return Batch{Source: SourceHTTP, Races: body.Races}, nil
}

// Fallback usa Primary e cai para Secondary em erro ou catálogo vazio.
type Fallback struct {
	Primary   Source
	Secondary Source
	Log       *zap.Logger
}

func (f *Fallback) Fetch(ctx context.Context) (Batch, error) {
	b, err := f.Primary.Fetch(ctx)
	if err == nil && len(b.Races) > 0 {
		return b, nil
	}
	if err != nil && !errors.Is(err, ErrNoFeed) {
		f.Log.Warn("race feed unavailable, using fallback", zap.Error(err))
	}
	return f.Secondary.Fetch(ctx)
}
