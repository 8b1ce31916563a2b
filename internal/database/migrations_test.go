package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/reliefops/fieldsync/internal/surveys"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsUploadFlags(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&surveys.Survey{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	serverID := int64(42)
	synced := surveys.Survey{
		ClientID:         "synced-record",
		PayloadJSON:      "{}",
		PhotoWithID:      []byte{1, 2, 3},
		Status:           surveys.StatusSynced,
		ServerID:         &serverID,
		CreatedAtSeconds: 1700000000,
		UpdatedAtSeconds: 1700000000,
	}
	pending := surveys.Survey{
		ClientID:         "pending-record",
		PayloadJSON:      "{}",
		PhotoWithID:      []byte{4, 5, 6},
		Status:           surveys.StatusPending,
		CreatedAtSeconds: 1700000000,
		UpdatedAtSeconds: 1700000000,
	}
	if err := database.Create(&synced).Error; err != nil {
		testContext.Fatalf("failed to insert synced record: %v", err)
	}
	if err := database.Create(&pending).Error; err != nil {
		testContext.Fatalf("failed to insert pending record: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored surveys.Survey
	if err := database.Where("client_id = ?", synced.ClientID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload synced record: %v", err)
	}
	if !stored.PhotoUploaded || !stored.RespondentSignatureUploaded || !stored.InterviewerSignatureUploaded {
		testContext.Fatalf("expected all upload flags set on synced record: %+v", stored)
	}

	stored = surveys.Survey{}
	if err := database.Where("client_id = ?", pending.ClientID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload pending record: %v", err)
	}
	if stored.PhotoUploaded {
		testContext.Fatalf("pending record must keep its upload flags clear")
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillUploadFlags).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations must be a no-op: %v", err)
	}
}
