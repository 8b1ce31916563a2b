package refdata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/reliefops/fieldsync/internal/api"
	"gorm.io/gorm"
)

type fakeRemote struct {
	provinces      []string
	districts      map[string][]string
	municipalities map[string][]string
	incidents      []api.Incident
	err            error
	calls          int
}

func (r *fakeRemote) Provinces(ctx context.Context) ([]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.provinces, nil
}

func (r *fakeRemote) Districts(ctx context.Context, province string) ([]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.districts[province], nil
}

func (r *fakeRemote) Municipalities(ctx context.Context, province, district string) ([]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.municipalities[province+"/"+district], nil
}

func (r *fakeRemote) Incidents(ctx context.Context) ([]api.Incident, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.incidents, nil
}

func newTestLoader(t *testing.T, remote *fakeRemote) (*Loader, *Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:fieldsync_refdata_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&CachedAddress{}, &CachedIncident{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	loader, err := NewLoader(LoaderConfig{Store: store, Remote: remote})
	if err != nil {
		t.Fatalf("failed to build loader: %v", err)
	}
	return loader, store
}

func taxonomyRemote() *fakeRemote {
	return &fakeRemote{
		provinces: []string{"Zambales", "Aurora"},
		districts: map[string][]string{
			"Aurora":   {"1st District"},
			"Zambales": {"1st District", "2nd District"},
		},
		municipalities: map[string][]string{
			"Aurora/1st District":   {"Baler", "Dipaculao"},
			"Zambales/1st District": {"Iba"},
			"Zambales/2nd District": {"Subic", "Olongapo"},
		},
	}
}

func TestEnsureAddressesBulkLoadsTaxonomy(t *testing.T) {
	loader, store := newTestLoader(t, taxonomyRemote())
	ctx := context.Background()

	loader.EnsureAddresses(ctx)

	count, err := store.AddressCount(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 cached tuples, got %d", count)
	}

	provinces := loader.Provinces(ctx)
	if len(provinces) != 2 || provinces[0] != "Aurora" || provinces[1] != "Zambales" {
		t.Fatalf("unexpected provinces: %v", provinces)
	}

	municipalities := loader.Municipalities(ctx, "Zambales", "2nd District")
	if len(municipalities) != 2 || municipalities[0] != "Olongapo" || municipalities[1] != "Subic" {
		t.Fatalf("unexpected municipalities: %v", municipalities)
	}
}

func TestEnsureAddressesSkipsWhenAlreadyPopulated(t *testing.T) {
	remote := taxonomyRemote()
	loader, store := newTestLoader(t, remote)
	ctx := context.Background()

	if err := store.BulkInsertAddresses(ctx, []CachedAddress{
		{Province: "Aurora", District: "1st District", Municipality: "Baler"},
	}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	loader.EnsureAddresses(ctx)
	if remote.calls != 0 {
		t.Fatalf("populated cache must not trigger a remote walk, got %d calls", remote.calls)
	}
}

func TestEnsureAddressesFailureLeavesCacheEmpty(t *testing.T) {
	remote := taxonomyRemote()
	remote.err = errors.New("network unreachable")
	loader, store := newTestLoader(t, remote)
	ctx := context.Background()

	loader.EnsureAddresses(ctx)

	count, err := store.AddressCount(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed fetch must leave cache empty, got %d", count)
	}
}

func TestLookupFallsBackToRemoteWhenCacheEmpty(t *testing.T) {
	remote := taxonomyRemote()
	loader, _ := newTestLoader(t, remote)
	ctx := context.Background()

	districts := loader.Districts(ctx, "Zambales")
	if len(districts) != 2 {
		t.Fatalf("expected live remote fallback, got %v", districts)
	}
	if remote.calls == 0 {
		t.Fatalf("expected a remote call")
	}
}

func TestLookupDegradesToEmptyWhenOffline(t *testing.T) {
	remote := &fakeRemote{err: errors.New("network unreachable")}
	loader, _ := newTestLoader(t, remote)

	provinces := loader.Provinces(context.Background())
	if provinces == nil || len(provinces) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", provinces)
	}
}

func TestRefreshIncidentsReplacesCacheAndServesStaleOnFailure(t *testing.T) {
	description := "typhoon response"
	remote := &fakeRemote{
		incidents: []api.Incident{
			{ID: 7, Name: "Typhoon Egay", Type: "typhoon", IsActive: true, Description: description},
		},
	}
	loader, store := newTestLoader(t, remote)
	ctx := context.Background()

	incidents, err := loader.RefreshIncidents(ctx)
	if err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(incidents) != 1 || incidents[0].ID != 7 {
		t.Fatalf("unexpected incidents: %#v", incidents)
	}

	remote.err = errors.New("network unreachable")
	cached, err := loader.RefreshIncidents(ctx)
	if err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(cached) != 1 || cached[0].Name != "Typhoon Egay" {
		t.Fatalf("expected cached copy, got %#v", cached)
	}

	stored, err := store.ListIncidents(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored incident, got %d", len(stored))
	}
}
