package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"threatwatch/internal/config"
	"threatwatch/internal/domain"
	"threatwatch/internal/feeds"
	"threatwatch/internal/ports"
)

// StrategySource implements FeedSource by running the registered fetch
// strategy of every configured source. Sources are fetched with bounded
// parallelism; a failing or slow source is skipped for the cycle and
// never aborts the rest.
type StrategySource struct {
	registry    *feeds.Registry
	sources     []config.SourceConfig
	timeout     time.Duration
	maxParallel int
	limit       int
	logger      *slog.Logger
}

var _ ports.FeedSource = (*StrategySource)(nil)

// NewStrategySource wires the fetcher registry with config-defined
// sources.
func NewStrategySource(reg *feeds.Registry, cfg config.IngestConfig, sources []config.SourceConfig, logger *slog.Logger) *StrategySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StrategySource{
		registry:    reg,
		sources:     sources,
		timeout:     cfg.SourceTimeout,
		maxParallel: cfg.MaxParallel,
		limit:       cfg.PerSourceLimit,
		logger:      logger,
	}
}

// Fetch pulls all sources and aggregates whatever the healthy ones
// produced. The returned error is non-nil only for configuration-level
// problems (no registry), never for per-source failures.
func (s *StrategySource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("fetcher registry is not configured")
	}

	var (
		mu         sync.Mutex
		aggregated []domain.Candidate
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if s.maxParallel > 0 {
		group.SetLimit(s.maxParallel)
	}

	for _, src := range s.sources {
		src := src
		group.Go(func() error {
			candidates, err := s.fetchOne(groupCtx, src)
			if err != nil {
				// Transient source failure: skip this cycle, keep the
				// rest going.
				s.logger.Warn("source skipped", "source", src.Name, "error", err)
				return nil
			}

			mu.Lock()
			aggregated = append(aggregated, candidates...)
			mu.Unlock()

			s.logger.Debug("source fetched", "source", src.Name, "count", len(candidates))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return aggregated, err
	}

	s.logger.Info("feed fetch done", "sources", len(s.sources), "candidates", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) fetchOne(ctx context.Context, src config.SourceConfig) ([]domain.Candidate, error) {
	fetcher, err := s.registry.Resolve(src.Fetcher)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return fetcher.Fetch(ctx, feeds.Request{
		SourceName: src.Name,
		URL:        src.URL,
		Category:   src.Category,
		Limit:      s.limit,
		Options:    src.Options,
	})
}
