package outbox

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

var errMissingRequester = errors.New("requester is required")

// Requester replays one queued request against the remote API.
type Requester interface {
	Do(ctx context.Context, method, target string, body []byte, headers map[string]string) error
}

// ProcessorConfig describes the dependencies of the queue processor.
type ProcessorConfig struct {
	Store     *Service
	Requester Requester
	Logger    *zap.Logger
}

// Processor replays queued requests strictly in FIFO order, halting on the
// first failure so dependent requests keep their ordering guarantees.
type Processor struct {
	store     *Service
	requester Requester
	logger    *zap.Logger
}

// NewProcessor constructs the queue processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Store == nil {
		return nil, newServiceError("outbox.processor.new", "missing_store", errMissingDatabase)
	}
	if cfg.Requester == nil {
		return nil, newServiceError("outbox.processor.new", "missing_requester", errMissingRequester)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Processor{store: cfg.Store, requester: cfg.Requester, logger: logger}, nil
}

// Process drains the queue oldest-first. Each confirmed entry is removed;
// the first failure stops processing immediately, leaving the failed entry
// and everything behind it for the next cycle. Returns the number of
// successfully replayed requests.
func (p *Processor) Process(ctx context.Context) (int, error) {
	entries, err := p.store.DequeueInOrder(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	processed := 0
	for _, entry := range entries {
		headers := map[string]string{}
		if entry.HeadersJSON != "" {
			if err := json.Unmarshal([]byte(entry.HeadersJSON), &headers); err != nil {
				p.logger.Warn("queued request has malformed headers, replaying without them",
					zap.Int64("id", entry.ID), zap.Error(err))
				headers = map[string]string{}
			}
		}

		if err := p.requester.Do(ctx, entry.Method, entry.Target, []byte(entry.BodyJSON), headers); err != nil {
			p.logger.Warn("queued request failed, halting queue replay",
				zap.Int64("id", entry.ID),
				zap.String("method", entry.Method),
				zap.String("target", entry.Target),
				zap.Error(err))
			return processed, nil
		}

		if err := p.store.Remove(ctx, entry.ID); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}
