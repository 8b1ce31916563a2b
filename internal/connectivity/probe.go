package connectivity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var errMissingProbeURL = errors.New("probe url is required")

const (
	defaultProbeInterval = 5 * time.Second
	probeTimeout         = 3 * time.Second
)

// ProbeSignalConfig describes an HTTP reachability probe.
type ProbeSignalConfig struct {
	URL string
	// Interval is the probe cadence. Defaults to 5s.
	Interval   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// ProbeSignal derives a connectivity signal from periodic HTTP probes
// against a known endpoint. It emits a value on every state transition,
// starting with the first observation.
type ProbeSignal struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// NewProbeSignal constructs the probe.
func NewProbeSignal(cfg ProbeSignalConfig) (*ProbeSignal, error) {
	if cfg.URL == "" {
		return nil, errMissingProbeURL
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &ProbeSignal{
		url:      cfg.URL,
		interval: interval,
		client:   client,
		logger:   logger,
	}, nil
}

// Watch starts probing and returns the transition channel. The channel is
// closed when the context is cancelled.
func (p *ProbeSignal) Watch(ctx context.Context) <-chan bool {
	signal := make(chan bool, 1)
	go p.run(ctx, signal)
	return signal
}

func (p *ProbeSignal) run(ctx context.Context, signal chan<- bool) {
	defer close(signal)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var known, online bool
	for {
		observed := p.probe(ctx)
		if !known || observed != online {
			known = true
			online = observed
			select {
			case signal <- online:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *ProbeSignal) probe(ctx context.Context) bool {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("building probe request failed", zap.Error(err))
		return false
	}
	response, err := p.client.Do(request)
	if err != nil {
		return false
	}
	defer response.Body.Close()
	return response.StatusCode < http.StatusInternalServerError
}
