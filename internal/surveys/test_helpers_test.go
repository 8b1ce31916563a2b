package surveys

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func mustClientID(t *testing.T, value string) ClientID {
	t.Helper()
	id, err := NewClientID(value)
	if err != nil {
		t.Fatalf("unexpected client id error: %v", err)
	}
	return id
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *int64) {
	t.Helper()

	dsn := fmt.Sprintf("file:fieldsync_surveys_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Survey{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	nowSeconds := int64(1700000000)
	clock := func() time.Time { return time.Unix(nowSeconds, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &staticIDGenerator{ids: []string{"client-1", "client-2", "client-3"}},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db, &nowSeconds
}
