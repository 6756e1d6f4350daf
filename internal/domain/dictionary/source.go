package dictionary

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// bundledCSV is the copy of the dictionary shipped with the binary. It is
// read only when the remote fetch fails and no fallback path is configured.
//
//go:embed assets/mkb10.csv
var bundledCSV []byte

// Snapshot is one full copy of the upstream CSV.
type Snapshot struct {
	Data   []byte
	Origin Origin
}

// Fetcher retrieves the raw dictionary CSV.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

type SourceConfig struct {
	URL          string
	Timeout      time.Duration
	FallbackPath string
}

// HTTPSource performs a single unauthenticated GET and falls back to a local
// copy on any failure. It never retries.
type HTTPSource struct {
	client       *resty.Client
	url          string
	fallbackPath string
	logger       zerolog.Logger
}

func NewHTTPSource(cfg SourceConfig, logger zerolog.Logger) *HTTPSource {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	return &HTTPSource{
		client:       client,
		url:          cfg.URL,
		fallbackPath: cfg.FallbackPath,
		logger:       logger,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (*Snapshot, error) {
	body, remoteErr := s.fetchRemote(ctx)
	if remoteErr == nil {
		return &Snapshot{Data: body, Origin: OriginRemote}, nil
	}

	s.logger.Warn().Err(remoteErr).Str("url", s.url).Msg("dictionary source unavailable, using local copy")

	body, fallbackErr := s.readFallback()
	if fallbackErr != nil {
		return nil, &FetchError{URL: s.url, Remote: remoteErr, Fallback: fallbackErr}
	}
	return &Snapshot{Data: body, Origin: OriginFallback}, nil
}

func (s *HTTPSource) fetchRemote(ctx context.Context) ([]byte, error) {
	res, err := s.client.R().
		SetContext(ctx).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode())
	}
	return res.Body(), nil
}

func (s *HTTPSource) readFallback() ([]byte, error) {
	if s.fallbackPath == "" {
		if len(bundledCSV) == 0 {
			return nil, errors.New("no bundled dictionary")
		}
		return bundledCSV, nil
	}
	data, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		return nil, fmt.Errorf("read fallback: %w", err)
	}
	return data, nil
}
