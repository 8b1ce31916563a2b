package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps an outbox store failure with an operation code.
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
	opServiceNew = "outbox.service.new"
	opEnqueue    = "outbox.enqueue"
	opDequeue    = "outbox.dequeue"
	opRemove     = "outbox.remove"
	opCount      = "outbox.count"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Request describes one deferred call to enqueue.
type Request struct {
	Target  string
	Method  string
	Body    any
	Headers map[string]string
}

// ServiceConfig describes the dependencies of the outbox store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the durable FIFO queue of deferred requests.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the outbox store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Enqueue appends a request to the queue.
func (s *Service) Enqueue(ctx context.Context, request Request) error {
	body, err := json.Marshal(request.Body)
	if err != nil {
		return newServiceError(opEnqueue, "encode_body_failed", err)
	}
	headers := request.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return newServiceError(opEnqueue, "encode_headers_failed", err)
	}

	entry := QueuedRequest{
		Target:           request.Target,
		Method:           request.Method,
		BodyJSON:         string(body),
		HeadersJSON:      string(headersJSON),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(opEnqueue, "insert_failed", err, zap.String("target", request.Target))
		return newServiceError(opEnqueue, "insert_failed", err)
	}
	return nil
}

// DequeueInOrder returns every queued request, oldest first.
func (s *Service) DequeueInOrder(ctx context.Context) ([]QueuedRequest, error) {
	var entries []QueuedRequest
	if err := s.db.WithContext(ctx).
		Order("created_at_s ASC, id ASC").
		Find(&entries).Error; err != nil {
		s.logError(opDequeue, "query_failed", err)
		return nil, newServiceError(opDequeue, "query_failed", err)
	}
	return entries, nil
}

// Remove deletes a confirmed entry from the queue.
func (s *Service) Remove(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&QueuedRequest{}).Error; err != nil {
		s.logError(opRemove, "delete_failed", err, zap.Int64("id", id))
		return newServiceError(opRemove, "delete_failed", err)
	}
	return nil
}

// Count returns the number of queued requests.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&QueuedRequest{}).Count(&count).Error; err != nil {
		s.logError(opCount, "count_failed", err)
		return 0, newServiceError(opCount, "count_failed", err)
	}
	return count, nil
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
	s.logger.Error("outbox error", attrs...)
}
