package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/httpclient"
	"github.com/lecturanotes/kalam/internal/metrics"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// ElevenLabsClient talks to the synchronous transcription provider. A
// single blocking call carries the audio up and the text back; there is
// no provider-side job to poll afterwards.
type ElevenLabsClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	modelID    string
}

func NewElevenLabsClient(apiKey, modelID string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:     apiKey,
		httpClient: httpclient.NewInstrumentedClient(timeout),
		baseURL:    elevenLabsBaseURL,
		modelID:    modelID,
	}
}

func (c *ElevenLabsClient) Configured() bool {
	return c.apiKey != ""
}

type speechToTextResponse struct {
	Text                string   `json:"text"`
	LanguageCode        string   `json:"language_code"`
	LanguageProbability *float64 `json:"language_probability"`
}

// Transcribe sends audio as a multipart upload and blocks until the
// provider returns the finished text. The form is streamed through a pipe
// so large files are never buffered whole.
func (c *ElevenLabsClient) Transcribe(ctx context.Context, audio io.Reader, fileName, language string) (Result, error) {
	ctx = httpclient.WithProvider(ctx, string(ProviderElevenLabs))
	start := time.Now()
	defer func() {
		attrs := []attribute.KeyValue{
			attribute.String("provider", string(ProviderElevenLabs)),
			attribute.String("operation", "transcribe"),
		}
		metrics.ProviderAPIDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		metrics.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}()

	if fileName == "" {
		fileName = "audio"
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		defer writer.Close()

		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			return
		}
		if err := writer.WriteField("model_id", c.modelID); err != nil {
			return
		}
		if language != "" {
			if err := writer.WriteField("language_code", language); err != nil {
				return
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/speech-to-text", pr)
	if err != nil {
		return Result{}, apperrors.NewProviderError("failed to create speech-to-text request", "STT_REQUEST_ERROR", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, apperrors.NewProviderError("failed to call speech-to-text API", "STT_ERROR", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, apperrors.NewProviderError("failed to read speech-to-text response", "STT_READ_ERROR", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, apperrors.NewProviderError(fmt.Sprintf("speech-to-text failed (status %d): %s", resp.StatusCode, string(body)), "STT_HTTP_ERROR", nil)
	}

	var stt speechToTextResponse
	if err := json.Unmarshal(body, &stt); err != nil {
		return Result{}, apperrors.NewProviderError("failed to parse speech-to-text response", "STT_PARSE_ERROR", err)
	}

	return Result{
		Text:       stt.Text,
		Language:   stt.LanguageCode,
		Confidence: stt.LanguageProbability,
	}, nil
}

// TranscribeURL fetches remote audio and forwards it through Transcribe.
// The provider only accepts direct uploads, so URL submissions pass
// through this process.
func (c *ElevenLabsClient) TranscribeURL(ctx context.Context, audioURL, language string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", audioURL, nil)
	if err != nil {
		return Result{}, apperrors.NewProviderError("failed to create audio fetch request", "AUDIO_FETCH_REQUEST_ERROR", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, apperrors.NewProviderError("failed to fetch audio", "AUDIO_FETCH_ERROR", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, apperrors.NewProviderError(fmt.Sprintf("failed to fetch audio: status %d", resp.StatusCode), "AUDIO_FETCH_HTTP_ERROR", nil)
	}

	return c.Transcribe(ctx, resp.Body, "audio", language)
}
