package refdata

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps a cache store failure with an operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "refdata.service.new"
	opClearAddresses   = "refdata.clear_addresses"
	opInsertAddresses  = "refdata.bulk_insert_addresses"
	opLookupAddresses  = "refdata.lookup_addresses"
	opReplaceIncidents = "refdata.replace_incidents"
	opListIncidents    = "refdata.list_incidents"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the reference cache store.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service is the durable on-device store for reference data.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the reference cache store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// ClearAddresses drops every cached address tuple.
func (s *Service) ClearAddresses(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&CachedAddress{}).Error; err != nil {
		s.logError(opClearAddresses, "delete_failed", err)
		return newServiceError(opClearAddresses, "delete_failed", err)
	}
	return nil
}

// BulkInsertAddresses persists a freshly fetched address taxonomy.
func (s *Service) BulkInsertAddresses(ctx context.Context, entries []CachedAddress) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(entries, 200).Error; err != nil {
		s.logError(opInsertAddresses, "insert_failed", err, zap.Int("entries", len(entries)))
		return newServiceError(opInsertAddresses, "insert_failed", err)
	}
	return nil
}

// AddressCount returns the number of cached address tuples.
func (s *Service) AddressCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&CachedAddress{}).Count(&count).Error; err != nil {
		s.logError(opLookupAddresses, "count_failed", err)
		return 0, newServiceError(opLookupAddresses, "count_failed", err)
	}
	return count, nil
}

// Provinces returns the distinct cached provinces, sorted.
func (s *Service) Provinces(ctx context.Context) ([]string, error) {
	var values []string
	if err := s.db.WithContext(ctx).
		Model(&CachedAddress{}).
		Distinct("province").
		Order("province ASC").
		Pluck("province", &values).Error; err != nil {
		s.logError(opLookupAddresses, "query_failed", err)
		return nil, newServiceError(opLookupAddresses, "query_failed", err)
	}
	return values, nil
}

// Districts returns the distinct cached districts for a province, sorted.
func (s *Service) Districts(ctx context.Context, province string) ([]string, error) {
	var values []string
	if err := s.db.WithContext(ctx).
		Model(&CachedAddress{}).
		Where("province = ?", province).
		Distinct("district").
		Order("district ASC").
		Pluck("district", &values).Error; err != nil {
		s.logError(opLookupAddresses, "query_failed", err, zap.String("province", province))
		return nil, newServiceError(opLookupAddresses, "query_failed", err)
	}
	return values, nil
}

// Municipalities returns the cached municipalities for a composite
// (province, district) key, sorted.
func (s *Service) Municipalities(ctx context.Context, province, district string) ([]string, error) {
	var values []string
	if err := s.db.WithContext(ctx).
		Model(&CachedAddress{}).
		Where("province = ? AND district = ?", province, district).
		Order("municipality ASC").
		Pluck("municipality", &values).Error; err != nil {
		s.logError(opLookupAddresses, "query_failed", err,
			zap.String("province", province),
			zap.String("district", district))
		return nil, newServiceError(opLookupAddresses, "query_failed", err)
	}
	return values, nil
}

// ReplaceIncidents swaps the cached incident list for a fresh copy.
func (s *Service) ReplaceIncidents(ctx context.Context, incidents []CachedIncident) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CachedIncident{}).Error; err != nil {
			return err
		}
		if len(incidents) == 0 {
			return nil
		}
		return tx.CreateInBatches(incidents, 200).Error
	})
	if err != nil {
		s.logError(opReplaceIncidents, "replace_failed", err, zap.Int("incidents", len(incidents)))
		return newServiceError(opReplaceIncidents, "replace_failed", err)
	}
	return nil
}

// ListIncidents returns the cached incident descriptors.
func (s *Service) ListIncidents(ctx context.Context) ([]CachedIncident, error) {
	var incidents []CachedIncident
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&incidents).Error; err != nil {
		s.logError(opListIncidents, "query_failed", err)
		return nil, newServiceError(opListIncidents, "query_failed", err)
	}
	return incidents, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("reference cache error", attrs...)
}
