package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/httpclient"
	"github.com/lecturanotes/kalam/internal/metrics"
)

const assemblyAIBaseURL = "https://api.assemblyai.com/v2"

// AssemblyAIClient talks to the asynchronous transcription provider.
// It is stateless; all job state lives at the provider and in the store.
type AssemblyAIClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewAssemblyAIClient(apiKey string, timeout time.Duration) *AssemblyAIClient {
	return &AssemblyAIClient{
		apiKey:     apiKey,
		httpClient: httpclient.NewInstrumentedClient(timeout),
		baseURL:    assemblyAIBaseURL,
	}
}

// Configured reports whether an API key is present. Submission paths
// check this before any network call.
func (c *AssemblyAIClient) Configured() bool {
	return c.apiKey != ""
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageCode      string `json:"language_code,omitempty"`
	Punctuate         bool   `json:"punctuate"`
	FormatText        bool   `json:"format_text"`
	SpeakerLabels     bool   `json:"speaker_labels,omitempty"`
	AutoHighlights    bool   `json:"auto_highlights,omitempty"`
	SentimentAnalysis bool   `json:"sentiment_analysis,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
}

type transcriptResponse struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Text         *string  `json:"text"`
	Confidence   *float64 `json:"confidence"`
	LanguageCode *string  `json:"language_code"`
	Duration     *float64 `json:"audio_duration"`
	Error        string   `json:"error"`
}

func (c *AssemblyAIClient) recordCall(ctx context.Context, operation string, start time.Time) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", string(ProviderAssemblyAI)),
		attribute.String("operation", operation),
	}
	metrics.ProviderAPIDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	metrics.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Upload streams raw audio to the provider's upload endpoint and returns
// the provider-hosted URL for it.
func (c *AssemblyAIClient) Upload(ctx context.Context, audio io.Reader) (string, error) {
	ctx = httpclient.WithProvider(ctx, string(ProviderAssemblyAI))
	start := time.Now()
	defer c.recordCall(ctx, "upload", start)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload", audio)
	if err != nil {
		return "", apperrors.NewProviderError("failed to create upload request", "UPLOAD_REQUEST_ERROR", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewProviderError("failed to upload audio", "UPLOAD_ERROR", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewProviderError("failed to read upload response", "UPLOAD_READ_ERROR", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewProviderError(fmt.Sprintf("audio upload failed (status %d): %s", resp.StatusCode, string(body)), "UPLOAD_HTTP_ERROR", nil)
	}

	var upload uploadResponse
	if err := json.Unmarshal(body, &upload); err != nil {
		return "", apperrors.NewProviderError("failed to parse upload response", "UPLOAD_PARSE_ERROR", err)
	}
	if upload.UploadURL == "" {
		return "", apperrors.NewProviderError("upload response missing upload_url", "UPLOAD_PARSE_ERROR", nil)
	}
	return upload.UploadURL, nil
}

// CreateJob starts an asynchronous transcription for audio already
// reachable by URL and returns the provider job id with its initial status.
func (c *AssemblyAIClient) CreateJob(ctx context.Context, audioURL string, opts JobOptions) (string, JobStatus, error) {
	ctx = httpclient.WithProvider(ctx, string(ProviderAssemblyAI))
	start := time.Now()
	defer c.recordCall(ctx, "create", start)

	payload := transcriptRequest{
		AudioURL:          audioURL,
		LanguageCode:      opts.LanguageCode,
		Punctuate:         opts.Punctuate,
		FormatText:        opts.FormatText,
		SpeakerLabels:     opts.SpeakerLabels,
		AutoHighlights:    opts.AutoHighlights,
		SentimentAnalysis: opts.SentimentAnalysis,
		LanguageDetection: opts.LanguageDetection,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", apperrors.NewProviderError("failed to encode transcript request", "CREATE_ENCODE_ERROR", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", "", apperrors.NewProviderError("failed to create transcript request", "CREATE_REQUEST_ERROR", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", apperrors.NewProviderError("failed to create transcription job", "CREATE_ERROR", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", apperrors.NewProviderError("failed to read transcript response", "CREATE_READ_ERROR", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", apperrors.NewProviderError(fmt.Sprintf("transcription job creation failed (status %d): %s", resp.StatusCode, string(respBody)), "CREATE_HTTP_ERROR", nil)
	}

	var tr transcriptResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", "", apperrors.NewProviderError("failed to parse transcript response", "CREATE_PARSE_ERROR", err)
	}
	if tr.ID == "" {
		return "", "", apperrors.NewProviderError("transcript response missing id", "CREATE_PARSE_ERROR", nil)
	}
	return tr.ID, mapProviderStatus(tr.Status), nil
}

// GetJobStatus reads the current state of a job. A provider 404 becomes a
// typed not-found error so callers can distinguish unknown ids from
// transient failures.
func (c *AssemblyAIClient) GetJobStatus(ctx context.Context, jobID string) (JobUpdate, error) {
	ctx = httpclient.WithProvider(ctx, string(ProviderAssemblyAI))
	start := time.Now()
	defer c.recordCall(ctx, "status", start)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return JobUpdate{}, apperrors.NewProviderError("failed to create status request", "STATUS_REQUEST_ERROR", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobUpdate{}, apperrors.NewProviderError("failed to read job status", "STATUS_ERROR", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobUpdate{}, apperrors.NewProviderError("failed to read status response", "STATUS_READ_ERROR", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return JobUpdate{}, apperrors.NewNotFoundError("transcription job not found", "JOB_NOT_FOUND", "Check the job id or submit the audio again")
	}
	if resp.StatusCode != http.StatusOK {
		return JobUpdate{}, apperrors.NewProviderError(fmt.Sprintf("status read failed (status %d): %s", resp.StatusCode, string(body)), "STATUS_HTTP_ERROR", nil)
	}

	var tr transcriptResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return JobUpdate{}, apperrors.NewProviderError("failed to parse status response", "STATUS_PARSE_ERROR", err)
	}

	return JobUpdate{
		JobID:       tr.ID,
		Status:      mapProviderStatus(tr.Status),
		Text:        tr.Text,
		Confidence:  tr.Confidence,
		Language:    tr.LanguageCode,
		Duration:    tr.Duration,
		ErrorDetail: tr.Error,
	}, nil
}

// mapProviderStatus maps the provider's status vocabulary onto ours. The
// sets happen to coincide; anything unrecognized is treated as still in
// flight rather than inventing a terminal state.
func mapProviderStatus(s string) JobStatus {
	switch s {
	case "queued":
		return StatusQueued
	case "processing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "error":
		return StatusError
	default:
		return StatusProcessing
	}
}
