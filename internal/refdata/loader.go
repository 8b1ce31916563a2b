package refdata

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/reliefops/fieldsync/internal/api"
	"go.uber.org/zap"
)

var errMissingRemote = errors.New("remote source is required")

const (
	memoTTL     = 5 * time.Minute
	memoSweep   = 10 * time.Minute
	memoKeySep  = "\x1f"
	provinceKey = "provinces"
)

// Remote is the subset of the API client the loader needs.
type Remote interface {
	Provinces(ctx context.Context) ([]string, error)
	Districts(ctx context.Context, province string) ([]string, error)
	Municipalities(ctx context.Context, province, district string) ([]string, error)
	Incidents(ctx context.Context) ([]api.Incident, error)
}

// LoaderConfig describes the dependencies of the reference data loader.
type LoaderConfig struct {
	Store  *Service
	Remote Remote
	Logger *zap.Logger
}

// Loader populates the reference cache from the remote source and answers
// lookups, degrading to live remote calls or empty results when either side
// is unavailable. Lookups never fail the caller.
type Loader struct {
	store  *Service
	remote Remote
	memo   *gocache.Cache
	logger *zap.Logger
}

// NewLoader constructs the reference data loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Store == nil {
		return nil, newServiceError("refdata.loader.new", "missing_store", errMissingDatabase)
	}
	if cfg.Remote == nil {
		return nil, newServiceError("refdata.loader.new", "missing_remote", errMissingRemote)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Loader{
		store:  cfg.Store,
		remote: cfg.Remote,
		memo:   gocache.New(memoTTL, memoSweep),
		logger: logger,
	}, nil
}

// EnsureAddresses bulk-loads the address taxonomy when the cache is empty.
// A failed fetch leaves the cache empty and lookups fall back to live remote
// queries per call; the caller is never handed an error.
func (l *Loader) EnsureAddresses(ctx context.Context) {
	count, err := l.store.AddressCount(ctx)
	if err != nil {
		l.logger.Warn("address cache count failed, skipping bulk load", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}

	entries, err := l.fetchTaxonomy(ctx)
	if err != nil {
		l.logger.Warn("address taxonomy fetch failed, cache stays empty", zap.Error(err))
		return
	}

	if err := l.store.ClearAddresses(ctx); err != nil {
		l.logger.Warn("address cache clear failed", zap.Error(err))
		return
	}
	if err := l.store.BulkInsertAddresses(ctx, entries); err != nil {
		l.logger.Warn("address cache insert failed", zap.Error(err))
		return
	}
	l.memo.Flush()
	l.logger.Info("address taxonomy cached", zap.Int("entries", len(entries)))
}

func (l *Loader) fetchTaxonomy(ctx context.Context) ([]CachedAddress, error) {
	provinces, err := l.remote.Provinces(ctx)
	if err != nil {
		return nil, err
	}

	var entries []CachedAddress
	for _, province := range provinces {
		districts, err := l.remote.Districts(ctx, province)
		if err != nil {
			return nil, err
		}
		for _, district := range districts {
			municipalities, err := l.remote.Municipalities(ctx, province, district)
			if err != nil {
				return nil, err
			}
			for _, municipality := range municipalities {
				entries = append(entries, CachedAddress{
					Province:     province,
					District:     district,
					Municipality: municipality,
				})
			}
		}
	}
	return entries, nil
}

// Provinces lists provinces from the cache, falling back to the remote
// source when the cache is empty and to an empty result when both fail.
func (l *Loader) Provinces(ctx context.Context) []string {
	return l.lookup(ctx, provinceKey,
		func() ([]string, error) { return l.store.Provinces(ctx) },
		func() ([]string, error) { return l.remote.Provinces(ctx) })
}

// Districts lists districts for a province with the same fallback chain.
func (l *Loader) Districts(ctx context.Context, province string) []string {
	return l.lookup(ctx, "districts"+memoKeySep+province,
		func() ([]string, error) { return l.store.Districts(ctx, province) },
		func() ([]string, error) { return l.remote.Districts(ctx, province) })
}

// Municipalities lists municipalities for a (province, district) pair with
// the same fallback chain.
func (l *Loader) Municipalities(ctx context.Context, province, district string) []string {
	return l.lookup(ctx, "municipalities"+memoKeySep+province+memoKeySep+district,
		func() ([]string, error) { return l.store.Municipalities(ctx, province, district) },
		func() ([]string, error) { return l.remote.Municipalities(ctx, province, district) })
}

func (l *Loader) lookup(ctx context.Context, memoKey string, cached, live func() ([]string, error)) []string {
	if hit, ok := l.memo.Get(memoKey); ok {
		if values, ok := hit.([]string); ok {
			return values
		}
	}

	values, err := cached()
	if err == nil && len(values) > 0 {
		l.memo.Set(memoKey, values, gocache.DefaultExpiration)
		return values
	}
	if err != nil {
		l.logger.Warn("cached lookup failed, trying remote", zap.String("key", memoKey), zap.Error(err))
	}

	values, err = live()
	if err != nil {
		l.logger.Warn("remote lookup failed, returning empty result", zap.String("key", memoKey), zap.Error(err))
		return []string{}
	}
	if len(values) > 0 {
		l.memo.Set(memoKey, values, gocache.DefaultExpiration)
	}
	return values
}

// RefreshIncidents fetches the incident list, replacing the cached copy on
// success and serving the cached copy when the remote is unavailable.
func (l *Loader) RefreshIncidents(ctx context.Context) ([]CachedIncident, error) {
	remote, err := l.remote.Incidents(ctx)
	if err != nil {
		l.logger.Warn("incident fetch failed, serving cached copy", zap.Error(err))
		return l.store.ListIncidents(ctx)
	}

	incidents := make([]CachedIncident, 0, len(remote))
	for _, incident := range remote {
		incidents = append(incidents, CachedIncident{
			ID:          incident.ID,
			Name:        incident.Name,
			Type:        incident.Type,
			StartsAt:    incident.StartsAt,
			EndsAt:      incident.EndsAt,
			IsActive:    incident.IsActive,
			Description: incident.Description,
		})
	}
	if err := l.store.ReplaceIncidents(ctx, incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}
