package surveys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a store failure with an operation code suitable for logs.
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
	opServiceNew   = "surveys.service.new"
	opCreate       = "surveys.create"
	opUpdate       = "surveys.update"
	opList         = "surveys.list"
	opDelete       = "surveys.delete"
	opSubmit       = "surveys.submit"
	opSetServerID  = "surveys.set_server_id"
	opMarkSynced   = "surveys.mark_synced"
	opMarkError    = "surveys.mark_error"
	opMarkUploaded = "surveys.mark_attachment_uploaded"
	opPut          = "surveys.put"
	opCount        = "surveys.count"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues client-side record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the local survey store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the durable on-device store for survey records.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the survey store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// NewClientID issues a fresh client identifier for a new survey.
func (s *Service) NewClientID() (ClientID, error) {
	raw, err := s.idProvider.NewID()
	if err != nil {
		return "", newServiceError(opCreate, "id_generation_failed", err)
	}
	return NewClientID(raw)
}

// Create inserts a new draft survey. It fails when the client id is already
// in use.
func (s *Service) Create(ctx context.Context, clientID ClientID, payloadJSON string) error {
	now := s.clock().UTC().Unix()
	record := Survey{
		ClientID:         clientID.String(),
		PayloadJSON:      payloadJSON,
		Status:           StatusDraft,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	var existing Survey
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID.String()).
		Take(&existing).Error
	if err == nil {
		return newServiceError(opCreate, "duplicate_client_id", fmt.Errorf("client id %s already exists", clientID))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opCreate, "select_failed", err, zap.String("client_id", clientID.String()))
		return newServiceError(opCreate, "select_failed", err)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("client_id", clientID.String()))
		return newServiceError(opCreate, "insert_failed", err)
	}
	return nil
}

// Update merges the non-nil patch fields into the stored record and always
// refreshes the updated timestamp.
func (s *Service) Update(ctx context.Context, clientID ClientID, patch Patch) error {
	updates := map[string]any{
		"updated_at_s": s.clock().UTC().Unix(),
	}
	if patch.PayloadJSON != nil {
		updates["payload_json"] = *patch.PayloadJSON
	}
	if patch.PhotoWithID != nil {
		updates["photo_with_id"] = *patch.PhotoWithID
	}
	if patch.RespondentSignature != nil {
		updates["respondent_signature"] = *patch.RespondentSignature
	}
	if patch.InterviewerSignature != nil {
		updates["interviewer_signature"] = *patch.InterviewerSignature
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.ServerID != nil {
		updates["server_id"] = *patch.ServerID
	}
	if patch.ErrorMessage != nil {
		updates["error_message"] = *patch.ErrorMessage
	}

	result := s.db.WithContext(ctx).
		Model(&Survey{}).
		Where("client_id = ?", clientID.String()).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error, zap.String("client_id", clientID.String()))
		return newServiceError(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdate, "not_found", fmt.Errorf("client id %s does not exist", clientID))
	}
	return nil
}

// Get returns the stored survey, or nil when the record is absent. Absence
// is an expected result at this layer, not an error.
func (s *Service) Get(ctx context.Context, clientID ClientID) (*Survey, error) {
	var record Survey
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opList, "get_failed", err, zap.String("client_id", clientID.String()))
		return nil, newServiceError(opList, "get_failed", err)
	}
	return &record, nil
}

// ListByStatus returns all surveys in the given state, oldest first.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Survey, error) {
	var records []Survey
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at_s ASC").
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("status", string(status)))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return records, nil
}

// ListUnsynced returns all surveys awaiting a push: submitted records plus
// records whose previous push failed.
func (s *Service) ListUnsynced(ctx context.Context) ([]Survey, error) {
	var records []Survey
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusError}).
		Order("created_at_s ASC").
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	return records, nil
}

// ListAll returns every stored survey, most recently updated first.
func (s *Service) ListAll(ctx context.Context) ([]Survey, error) {
	var records []Survey
	if err := s.db.WithContext(ctx).
		Order("updated_at_s DESC").
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	return records, nil
}

// Delete removes a survey. Only draft and error records may be deleted;
// pending and synced records may already exist on the server.
func (s *Service) Delete(ctx context.Context, clientID ClientID) error {
	record, err := s.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if record == nil {
		return newServiceError(opDelete, "not_found", fmt.Errorf("client id %s does not exist", clientID))
	}
	if !record.Deletable() {
		return newServiceError(opDelete, "status_locked", fmt.Errorf("cannot delete survey in status %s", record.Status))
	}
	if err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID.String()).
		Delete(&Survey{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("client_id", clientID.String()))
		return newServiceError(opDelete, "delete_failed", err)
	}
	return nil
}

// Submit transitions a draft survey to pending so the next sync cycle picks
// it up.
func (s *Service) Submit(ctx context.Context, clientID ClientID) error {
	record, err := s.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if record == nil {
		return newServiceError(opSubmit, "not_found", fmt.Errorf("client id %s does not exist", clientID))
	}
	if record.Status != StatusDraft {
		return newServiceError(opSubmit, "not_draft", fmt.Errorf("cannot submit survey in status %s", record.Status))
	}
	pending := StatusPending
	return s.Update(ctx, clientID, Patch{Status: &pending})
}

// SetServerID persists the server-assigned identity the moment it is known,
// before any dependent upload is attempted. Once set, the value is
// immutable; a conflicting assignment is rejected.
func (s *Service) SetServerID(ctx context.Context, clientID ClientID, serverID int64) error {
	record, err := s.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if record == nil {
		return newServiceError(opSetServerID, "not_found", fmt.Errorf("client id %s does not exist", clientID))
	}
	if record.ServerID != nil {
		if *record.ServerID != serverID {
			return newServiceError(opSetServerID, "server_id_conflict",
				fmt.Errorf("server id %d already assigned, refusing %d", *record.ServerID, serverID))
		}
		return nil
	}
	return s.Update(ctx, clientID, Patch{ServerID: &serverID})
}

// MarkSynced records a fully successful push.
func (s *Service) MarkSynced(ctx context.Context, clientID ClientID, serverID int64) error {
	if err := s.SetServerID(ctx, clientID, serverID); err != nil {
		return err
	}
	synced := StatusSynced
	empty := ""
	if err := s.Update(ctx, clientID, Patch{Status: &synced, ErrorMessage: &empty}); err != nil {
		return newServiceError(opMarkSynced, "update_failed", err)
	}
	return nil
}

// MarkError records a failed push attempt. The server id, when already
// known, is preserved so a retry never re-creates the remote record.
func (s *Service) MarkError(ctx context.Context, clientID ClientID, message string) error {
	errored := StatusError
	if err := s.Update(ctx, clientID, Patch{Status: &errored, ErrorMessage: &message}); err != nil {
		return newServiceError(opMarkError, "update_failed", err)
	}
	return nil
}

// MarkAttachmentUploaded flags one attachment as accepted by the server so a
// retry only re-sends the blobs that are still missing.
func (s *Service) MarkAttachmentUploaded(ctx context.Context, clientID ClientID, kind AttachmentKind) error {
	var column string
	switch kind {
	case AttachmentPhotoWithID:
		column = "photo_uploaded"
	case AttachmentRespondentSignature:
		column = "respondent_signature_uploaded"
	case AttachmentInterviewerSignature:
		column = "interviewer_signature_uploaded"
	default:
		return newServiceError(opMarkUploaded, "unknown_kind", fmt.Errorf("unknown attachment kind %q", kind))
	}

	result := s.db.WithContext(ctx).
		Model(&Survey{}).
		Where("client_id = ?", clientID.String()).
		Updates(map[string]any{
			column:         true,
			"updated_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		s.logError(opMarkUploaded, "update_failed", result.Error, zap.String("client_id", clientID.String()))
		return newServiceError(opMarkUploaded, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opMarkUploaded, "not_found", fmt.Errorf("client id %s does not exist", clientID))
	}
	return nil
}

// Put saves a whole record as-is. Used by the pull pass to upsert remote
// copies that won precedence.
func (s *Service) Put(ctx context.Context, record Survey) error {
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		s.logError(opPut, "save_failed", err, zap.String("client_id", record.ClientID))
		return newServiceError(opPut, "save_failed", err)
	}
	return nil
}

// CountByStatus returns the number of surveys in the given state.
func (s *Service) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Survey{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		s.logError(opCount, "count_failed", err, zap.String("status", string(status)))
		return 0, newServiceError(opCount, "count_failed", err)
	}
	return count, nil
}

// CountUnsynced returns the number of surveys still awaiting a successful
// push (pending plus error).
func (s *Service) CountUnsynced(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Survey{}).
		Where("status IN ?", []Status{StatusPending, StatusError}).
		Count(&count).Error; err != nil {
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
	s.logger.Error("survey store error", attrs...)
}
