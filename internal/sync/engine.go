package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/reliefops/fieldsync/internal/api"
	"github.com/reliefops/fieldsync/internal/outbox"
	"github.com/reliefops/fieldsync/internal/surveys"
	"go.uber.org/zap"
)

var (
	// ErrSyncInFlight signals that a cycle was requested while another one
	// is still running. Callers skip, they never queue.
	ErrSyncInFlight = errors.New("sync: cycle already in flight")

	errMissingSurveys = errors.New("survey store is required")
	errMissingRemote  = errors.New("remote api is required")
	noOpLogger        = zap.NewNop()
)

// Remote is the subset of the API client the engine needs.
type Remote interface {
	CreateSurvey(ctx context.Context, clientUUID, payloadJSON string) (int64, error)
	UploadAttachment(ctx context.Context, serverID int64, kind string, data []byte) error
	ListSurveys(ctx context.Context, page int) (api.SurveyPage, error)
}

// Summary reports the outcome of one push pass.
type Summary struct {
	Synced int
	Failed int
}

// EngineConfig describes the dependencies of the sync engine.
type EngineConfig struct {
	Surveys *surveys.Service
	Remote  Remote
	Outbox  *outbox.Processor
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Engine reconciles local and remote survey state: it pushes locally
// pending records to the server, then pulls server-authoritative records
// into the local store. Cycles never run concurrently with themselves.
type Engine struct {
	surveys  *surveys.Service
	remote   Remote
	outbox   *outbox.Processor
	clock    func() time.Time
	logger   *zap.Logger
	inFlight atomic.Bool
}

// NewEngine constructs the sync engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Surveys == nil {
		return nil, errMissingSurveys
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Engine{
		surveys: cfg.Surveys,
		remote:  cfg.Remote,
		outbox:  cfg.Outbox,
		clock:   clock,
		logger:  logger,
	}, nil
}

// InFlight reports whether a cycle is currently running.
func (e *Engine) InFlight() bool {
	return e.inFlight.Load()
}

// Run executes one full synchronization cycle: drain the outbox, push all
// unsynced records, then pull the remote listing. A concurrent invocation
// returns ErrSyncInFlight without doing any work.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Summary{}, ErrSyncInFlight
	}
	defer e.inFlight.Store(false)

	if e.outbox != nil {
		if processed, err := e.outbox.Process(ctx); err != nil {
			e.logger.Warn("outbox drain failed", zap.Error(err))
		} else if processed > 0 {
			e.logger.Info("outbox drained", zap.Int("processed", processed))
		}
	}

	summary := e.push(ctx)

	if err := e.pull(ctx); err != nil {
		// A partial pull has little value; the next cycle catches up.
		e.logger.Warn("pull pass aborted", zap.Error(err))
	}

	return summary, nil
}

// push uploads every pending and errored record. Records fail
// independently: one record's failure never aborts the others.
func (e *Engine) push(ctx context.Context) Summary {
	records, err := e.surveys.ListUnsynced(ctx)
	if err != nil {
		e.logger.Error("listing unsynced records failed", zap.Error(err))
		return Summary{}
	}

	var summary Summary
	for _, record := range records {
		if err := e.pushOne(ctx, record); err != nil {
			summary.Failed++
			clientID, idErr := surveys.NewClientID(record.ClientID)
			if idErr != nil {
				e.logger.Error("push failed for record with invalid client id",
					zap.String("client_id", record.ClientID), zap.Error(err))
				continue
			}
			if markErr := e.surveys.MarkError(ctx, clientID, err.Error()); markErr != nil {
				e.logger.Error("marking record as errored failed",
					zap.String("client_id", record.ClientID), zap.Error(markErr))
			}
			e.logger.Warn("record push failed",
				zap.String("client_id", record.ClientID), zap.Error(err))
			continue
		}
		summary.Synced++
	}
	return summary
}

// pushOne performs the per-record push protocol: create remotely unless a
// server identity is already known, persist that identity before any
// upload, then send the attachments still missing, in fixed order.
func (e *Engine) pushOne(ctx context.Context, record surveys.Survey) error {
	clientID, err := surveys.NewClientID(record.ClientID)
	if err != nil {
		return err
	}

	var serverID int64
	if record.ServerID != nil {
		// A prior attempt already created the remote record. Creating it
		// again would duplicate the survey, so go straight to the uploads.
		serverID = *record.ServerID
	} else {
		serverID, err = e.remote.CreateSurvey(ctx, record.ClientID, record.PayloadJSON)
		if err != nil {
			return fmt.Errorf("create survey: %w", err)
		}
		// Persist the identity before any upload so a failure partway can
		// never lose it.
		if err := e.surveys.SetServerID(ctx, clientID, serverID); err != nil {
			return fmt.Errorf("persist server id %d: %w", serverID, err)
		}
	}

	for _, kind := range surveys.AttachmentUploadOrder {
		data := record.Attachment(kind)
		if len(data) == 0 || record.AttachmentUploaded(kind) {
			continue
		}
		if err := e.remote.UploadAttachment(ctx, serverID, string(kind), data); err != nil {
			return fmt.Errorf("upload %s: %w", kind, err)
		}
		if err := e.surveys.MarkAttachmentUploaded(ctx, clientID, kind); err != nil {
			return fmt.Errorf("record %s upload: %w", kind, err)
		}
	}

	return e.surveys.MarkSynced(ctx, clientID, serverID)
}

// pull walks the paginated remote listing and upserts records the local
// store does not hold authoritative in-flight intent for. Any failure
// aborts the whole pass.
func (e *Engine) pull(ctx context.Context) error {
	for page := 1; ; page++ {
		listing, err := e.remote.ListSurveys(ctx, page)
		if err != nil {
			return fmt.Errorf("list surveys page %d: %w", page, err)
		}
		for _, remote := range listing.Surveys {
			if err := e.applyRemote(ctx, remote); err != nil {
				return err
			}
		}
		if !listing.HasMore || len(listing.Surveys) == 0 {
			return nil
		}
	}
}

// applyRemote upserts one pulled record. Local records in draft, pending or
// error state represent in-flight local intent and are never overwritten.
func (e *Engine) applyRemote(ctx context.Context, remote api.RemoteSurvey) error {
	clientID, err := surveys.NewClientID(remote.ClientUUID)
	if err != nil {
		e.logger.Warn("skipping pulled record with unusable client uuid",
			zap.Int64("server_id", remote.ServerID), zap.Error(err))
		return nil
	}

	local, err := e.surveys.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if local != nil && local.Status != surveys.StatusSynced {
		return nil
	}

	now := e.clock().UTC().Unix()
	record := surveys.Survey{
		ClientID:         clientID.String(),
		PayloadJSON:      remote.PayloadJSON,
		Status:           surveys.StatusSynced,
		ServerID:         &remote.ServerID,
		CreatedAtSeconds: parseRemoteTime(remote.CreatedAt, now),
		UpdatedAtSeconds: parseRemoteTime(remote.UpdatedAt, now),
	}
	if local != nil {
		record.CreatedAtSeconds = local.CreatedAtSeconds
		record.PhotoWithID = local.PhotoWithID
		record.RespondentSignature = local.RespondentSignature
		record.InterviewerSignature = local.InterviewerSignature
		record.PhotoUploaded = local.PhotoUploaded
		record.RespondentSignatureUploaded = local.RespondentSignatureUploaded
		record.InterviewerSignatureUploaded = local.InterviewerSignatureUploaded
	}

	return e.surveys.Put(ctx, record)
}

func parseRemoteTime(value string, fallback int64) int64 {
	if value == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return parsed.Unix()
}
