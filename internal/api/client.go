package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reliefops/fieldsync/internal/session"
	"go.uber.org/zap"
)

var (
	errMissingBaseURL = errors.New("api: base url is required")
	errMissingSession = errors.New("api: session is required")
	noOpLogger        = zap.NewNop()
)

const defaultTimeout = 30 * time.Second

// RequestError describes a non-2xx response from the server.
type RequestError struct {
	Method     string
	Target     string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.Target, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %s %s: status %d", e.Method, e.Target, e.StatusCode)
}

// ClientConfig describes the dependencies of the remote API client.
type ClientConfig struct {
	BaseURL    string
	Session    *session.Session
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks JSON-over-HTTPS to the survey server, translating between
// internal camelCase payloads and the server's snake_case wire fields.
type Client struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs the remote API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Session == nil {
		return nil, errMissingSession
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Client{
		baseURL:    baseURL,
		session:    cfg.Session,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type createdSurvey struct {
	ID int64 `json:"id"`
}

// CreateSurvey submits a captured survey for remote creation. The client
// uuid travels with the payload as the idempotency key; the server-assigned
// identifier is returned.
func (c *Client) CreateSurvey(ctx context.Context, clientUUID, payloadJSON string) (int64, error) {
	var form FormData
	if err := json.Unmarshal([]byte(payloadJSON), &form); err != nil {
		return 0, fmt.Errorf("api: decode survey payload: %w", err)
	}

	wire := struct {
		ClientUUID string `json:"client_uuid"`
		wireSurvey
	}{
		ClientUUID: clientUUID,
		wireSurvey: toWire(form),
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return 0, fmt.Errorf("api: encode survey payload: %w", err)
	}

	var envelope dataEnvelope[createdSurvey]
	if err := c.doJSON(ctx, http.MethodPost, "/v1/surveys", body, &envelope); err != nil {
		return 0, err
	}
	return envelope.Data.ID, nil
}

// UploadAttachment sends one binary attachment for an already created
// survey, tagged with its kind.
func (c *Client) UploadAttachment(ctx context.Context, serverID int64, kind string, data []byte) error {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	extension := "jpg"
	if len(data) >= 8 && bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		extension = "png"
	}
	part, err := writer.CreateFormFile("file", fmt.Sprintf("%s.%s", kind, extension))
	if err != nil {
		return fmt.Errorf("api: build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("api: build upload form: %w", err)
	}
	if err := writer.WriteField("type", kind); err != nil {
		return fmt.Errorf("api: build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("api: build upload form: %w", err)
	}

	target := fmt.Sprintf("/v1/surveys/%d/uploads", serverID)
	request, err := c.newRequest(ctx, http.MethodPost, target, &buffer)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", http.MethodPost, target, err)
	}
	defer response.Body.Close()

	return c.checkStatus(http.MethodPost, target, response)
}

type pageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

type wireSurveyRecord struct {
	ID         int64  `json:"id"`
	ClientUUID string `json:"client_uuid"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	wireSurvey
}

// ListSurveys fetches one page of the server's survey listing.
func (c *Client) ListSurveys(ctx context.Context, page int) (SurveyPage, error) {
	target := fmt.Sprintf("/v1/surveys?page=%d", page)

	var envelope struct {
		Data []wireSurveyRecord `json:"data"`
		Meta pageMeta           `json:"meta"`
	}
	if err := c.doJSON(ctx, http.MethodGet, target, nil, &envelope); err != nil {
		return SurveyPage{}, err
	}

	surveys := make([]RemoteSurvey, 0, len(envelope.Data))
	for _, record := range envelope.Data {
		payload, err := json.Marshal(fromWire(record.wireSurvey))
		if err != nil {
			return SurveyPage{}, fmt.Errorf("api: encode pulled payload: %w", err)
		}
		surveys = append(surveys, RemoteSurvey{
			ServerID:    record.ID,
			ClientUUID:  record.ClientUUID,
			PayloadJSON: string(payload),
			CreatedAt:   record.CreatedAt,
			UpdatedAt:   record.UpdatedAt,
		})
	}

	hasMore := envelope.Meta.CurrentPage < envelope.Meta.LastPage && len(envelope.Data) > 0
	return SurveyPage{Surveys: surveys, HasMore: hasMore}, nil
}

// Provinces fetches the province list.
func (c *Client) Provinces(ctx context.Context) ([]string, error) {
	var values []string
	if err := c.doJSON(ctx, http.MethodGet, "/v1/addresses/provinces", nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Districts fetches the district list for a province.
func (c *Client) Districts(ctx context.Context, province string) ([]string, error) {
	target := "/v1/addresses/districts?province=" + url.QueryEscape(province)
	var values []string
	if err := c.doJSON(ctx, http.MethodGet, target, nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Municipalities fetches the municipality list for a (province, district) pair.
func (c *Client) Municipalities(ctx context.Context, province, district string) ([]string, error) {
	target := "/v1/addresses/municipalities?province=" + url.QueryEscape(province) +
		"&district=" + url.QueryEscape(district)
	var values []string
	if err := c.doJSON(ctx, http.MethodGet, target, nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Incidents fetches the incident descriptors.
func (c *Client) Incidents(ctx context.Context) ([]Incident, error) {
	var envelope dataEnvelope[[]wireIncident]
	if err := c.doJSON(ctx, http.MethodGet, "/v1/incidents", nil, &envelope); err != nil {
		return nil, err
	}
	incidents := make([]Incident, 0, len(envelope.Data))
	for _, wire := range envelope.Data {
		incidents = append(incidents, mapIncident(wire))
	}
	return incidents, nil
}

// Do replays an arbitrary queued request. Used by the outbox processor for
// secondary mutations captured while offline.
func (c *Client) Do(ctx context.Context, method, target string, body []byte, headers map[string]string) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	request, err := c.newRequest(ctx, method, target, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, target, err)
	}
	defer response.Body.Close()

	return c.checkStatus(method, target, response)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, body)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if token := c.session.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	return request, nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	request, err := c.newRequest(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, target, err)
	}
	defer response.Body.Close()

	if err := c.checkStatus(method, target, response); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("api: %s %s: decode response: %w", method, target, err)
	}
	return nil
}

func (c *Client) checkStatus(method, target string, response *http.Response) error {
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	message := readServerMessage(response.Body)
	c.logger.Warn("api request failed",
		zap.String("method", method),
		zap.String("target", target),
		zap.Int("status", response.StatusCode))
	return &RequestError{
		Method:     method,
		Target:     target,
		StatusCode: response.StatusCode,
		Message:    message,
	}
}

func readServerMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return strings.TrimSpace(string(raw))
}
