package surveys

import (
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the lifecycle states of a locally captured survey.
type Status string

const (
	// StatusDraft marks a survey still being edited in the wizard.
	StatusDraft Status = "draft"
	// StatusPending marks a submitted survey awaiting upload to the server.
	StatusPending Status = "pending"
	// StatusSynced marks a survey the server has accepted in full.
	StatusSynced Status = "synced"
	// StatusError marks a survey whose last push attempt failed.
	StatusError Status = "error"
)

// AttachmentKind identifies one of the inline binary attachments.
type AttachmentKind string

const (
	AttachmentPhotoWithID          AttachmentKind = "photo_with_id"
	AttachmentRespondentSignature  AttachmentKind = "respondent_signature"
	AttachmentInterviewerSignature AttachmentKind = "interviewer_signature"
)

// AttachmentUploadOrder fixes the deterministic order in which attachments
// are pushed to the server.
var AttachmentUploadOrder = []AttachmentKind{
	AttachmentPhotoWithID,
	AttachmentRespondentSignature,
	AttachmentInterviewerSignature,
}

const maxIdentifierLength = 190

var (
	// ErrInvalidClientID indicates that a client identifier is empty or exceeds storage bounds.
	ErrInvalidClientID = errors.New("surveys: invalid client id")
	// ErrInvalidStatus indicates an unknown survey status value.
	ErrInvalidStatus = errors.New("surveys: invalid status")
)

// ClientID represents a validated client-generated survey identifier.
type ClientID string

// NewClientID validates raw input and returns a ClientID.
func NewClientID(rawInput string) (ClientID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidClientID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidClientID, maxIdentifierLength)
	}
	return ClientID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ClientID) String() string {
	return string(id)
}

// ParseStatus validates raw input and returns a Status.
func ParseStatus(rawInput string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(rawInput))) {
	case StatusDraft:
		return StatusDraft, nil
	case StatusPending:
		return StatusPending, nil
	case StatusSynced:
		return StatusSynced, nil
	case StatusError:
		return StatusError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// Survey models one respondent's submission persisted on-device.
//
// ServerID is set once the server accepts the record and is never discarded
// afterwards: its absence is what triggers remote creation, so dropping it
// would produce a duplicate remote record on retry.
type Survey struct {
	ClientID                     string  `gorm:"column:client_id;primaryKey;size:190;not null"`
	PayloadJSON                  string  `gorm:"column:payload_json;type:text;not null"`
	PhotoWithID                  []byte  `gorm:"column:photo_with_id"`
	RespondentSignature          []byte  `gorm:"column:respondent_signature"`
	InterviewerSignature         []byte  `gorm:"column:interviewer_signature"`
	PhotoUploaded                bool    `gorm:"column:photo_uploaded;not null;default:false"`
	RespondentSignatureUploaded  bool    `gorm:"column:respondent_signature_uploaded;not null;default:false"`
	InterviewerSignatureUploaded bool    `gorm:"column:interviewer_signature_uploaded;not null;default:false"`
	Status                       Status  `gorm:"column:status;size:16;not null;index:idx_survey_records_status"`
	ServerID                     *int64  `gorm:"column:server_id"`
	ErrorMessage                 string  `gorm:"column:error_message;type:text;not null;default:''"`
	CreatedAtSeconds             int64   `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds             int64   `gorm:"column:updated_at_s;not null;index:idx_survey_records_updated"`
}

// TableName provides the explicit table binding for GORM.
func (Survey) TableName() string {
	return "survey_records"
}

// Attachment returns the blob stored for the given kind, or nil when absent.
func (s Survey) Attachment(kind AttachmentKind) []byte {
	switch kind {
	case AttachmentPhotoWithID:
		return s.PhotoWithID
	case AttachmentRespondentSignature:
		return s.RespondentSignature
	case AttachmentInterviewerSignature:
		return s.InterviewerSignature
	default:
		return nil
	}
}

// AttachmentUploaded reports whether the blob for the given kind has already
// been accepted by the server.
func (s Survey) AttachmentUploaded(kind AttachmentKind) bool {
	switch kind {
	case AttachmentPhotoWithID:
		return s.PhotoUploaded
	case AttachmentRespondentSignature:
		return s.RespondentSignatureUploaded
	case AttachmentInterviewerSignature:
		return s.InterviewerSignatureUploaded
	default:
		return false
	}
}

// Deletable reports whether the record may be removed locally. Pending and
// synced records may already exist on the server and must not be destroyed.
func (s Survey) Deletable() bool {
	return s.Status == StatusDraft || s.Status == StatusError
}

// Patch describes a partial update to a stored survey. Nil fields are left
// untouched; the store always refreshes the updated timestamp.
type Patch struct {
	PayloadJSON          *string
	PhotoWithID          *[]byte
	RespondentSignature  *[]byte
	InterviewerSignature *[]byte
	Status               *Status
	ServerID             *int64
	ErrorMessage         *string
}
