package transcription

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(assemblyURL, elevenURL string, jobs JobStore) *Dispatcher {
	assembly := NewAssemblyAIClient("aai-key", 5*time.Second)
	assembly.baseURL = assemblyURL
	eleven := NewElevenLabsClient("el-key", "scribe_v1", 5*time.Second)
	eleven.baseURL = elevenURL
	return NewDispatcher(assembly, eleven, jobs, testLogger(), 10*time.Second)
}

func assemblyStub(t *testing.T, onCreate func(payload map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload":
			w.Write([]byte(`{"upload_url": "https://cdn.example/uploaded"}`))
		case "/transcript":
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if onCreate != nil {
				onCreate(payload)
			}
			w.Write([]byte(`{"id": "job-abc", "status": "queued"}`))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
}

func TestSubmit_AsyncFileUpload(t *testing.T) {
	var createPayload map[string]any
	server := assemblyStub(t, func(p map[string]any) { createPayload = p })
	defer server.Close()

	jobs := newFakeJobStore()
	d := newTestDispatcher(server.URL, "http://unused.invalid", jobs)

	sub, err := d.Submit(context.Background(), SubmitRequest{
		File:     ReadSource{Reader: strings.NewReader("audio"), FileName: "lecture.mp3"},
		Language: "auto",
		OwnerID:  "user-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.JobID != "job-abc" {
		t.Errorf("Expected job id from provider, got %q", sub.JobID)
	}
	if sub.Status != StatusQueued {
		t.Errorf("Expected queued, got %q", sub.Status)
	}
	if sub.Provider != ProviderAssemblyAI {
		t.Errorf("Expected assemblyai provider, got %q", sub.Provider)
	}
	if createPayload["audio_url"] != "https://cdn.example/uploaded" {
		t.Errorf("Expected uploaded URL forwarded, got %v", createPayload["audio_url"])
	}
	if _, ok := createPayload["language_code"]; ok {
		t.Error("language_code should be omitted for auto")
	}

	if len(jobs.created) != 1 {
		t.Fatalf("Expected one record, got %d", len(jobs.created))
	}
	rec := jobs.created[0]
	if rec.JobID != "job-abc" || rec.UserID != "user-1" || rec.Status != "queued" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.Language == nil || *rec.Language != "auto" {
		t.Errorf("Expected stored language auto, got %v", rec.Language)
	}
	if rec.Name != "lecture.mp3" {
		t.Errorf("Expected file name as record name, got %q", rec.Name)
	}
}

func TestSubmit_AsyncURL(t *testing.T) {
	var createPayload map[string]any
	server := assemblyStub(t, func(p map[string]any) { createPayload = p })
	defer server.Close()

	jobs := newFakeJobStore()
	d := newTestDispatcher(server.URL, "http://unused.invalid", jobs)

	_, err := d.Submit(context.Background(), SubmitRequest{
		AudioURL: "https://example.com/talk.mp3",
		Language: "es",
		OwnerID:  "user-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if createPayload["audio_url"] != "https://example.com/talk.mp3" {
		t.Errorf("Expected caller URL passed through, got %v", createPayload["audio_url"])
	}
	if createPayload["language_code"] != "es" {
		t.Errorf("Expected language_code es, got %v", createPayload["language_code"])
	}
}

func TestSubmit_EnhancedFlagsOnlyForSupportedLanguages(t *testing.T) {
	tests := []struct {
		name     string
		language string
		want     bool
	}{
		{"english", "en", true},
		{"auto", "auto", true},
		{"spanish", "es", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var createPayload map[string]any
			server := assemblyStub(t, func(p map[string]any) { createPayload = p })
			defer server.Close()

			d := newTestDispatcher(server.URL, "http://unused.invalid", newFakeJobStore())
			_, err := d.Submit(context.Background(), SubmitRequest{
				AudioURL:         "https://example.com/a.mp3",
				Language:         tt.language,
				EnhancedAccuracy: true,
			})
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			_, got := createPayload["speaker_labels"]
			if got != tt.want {
				t.Errorf("speaker_labels present = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubmit_ArabicRoutesToSyncProvider(t *testing.T) {
	elServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-text" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"text": "نص المحاضرة", "language_code": "ar", "language_probability": 0.95}`))
	}))
	defer elServer.Close()

	jobs := newFakeJobStore()
	d := newTestDispatcher("http://unused.invalid", elServer.URL, jobs)

	sub, err := d.Submit(context.Background(), SubmitRequest{
		File:     ReadSource{Reader: strings.NewReader("audio"), FileName: "talk.mp3"},
		Language: "ar",
		OwnerID:  "user-2",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !strings.HasPrefix(sub.JobID, SyncJobPrefix) {
		t.Errorf("Expected synthesized %s id, got %q", SyncJobPrefix, sub.JobID)
	}
	if sub.Status != StatusCompleted {
		t.Errorf("Expected completed, got %q", sub.Status)
	}
	if sub.Text == nil || *sub.Text != "نص المحاضرة" {
		t.Errorf("Expected text in submission, got %v", sub.Text)
	}

	if len(jobs.created) != 1 {
		t.Fatalf("Expected one record, got %d", len(jobs.created))
	}
	rec := jobs.created[0]
	if rec.Status != "completed" {
		t.Errorf("Expected record written completed, got %q", rec.Status)
	}
	if rec.Text == nil || *rec.Text != "نص المحاضرة" {
		t.Errorf("Expected text persisted, got %v", rec.Text)
	}
	if rec.Language == nil || *rec.Language != "ar" {
		t.Errorf("Expected language ar, got %v", rec.Language)
	}
}

func TestSubmit_ExactlyOneSource(t *testing.T) {
	d := newTestDispatcher("http://unused.invalid", "http://unused.invalid", newFakeJobStore())

	_, err := d.Submit(context.Background(), SubmitRequest{})
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for no source, got %v", err)
	}

	_, err = d.Submit(context.Background(), SubmitRequest{
		File:     ReadSource{Reader: strings.NewReader("x")},
		AudioURL: "https://example.com/a.mp3",
	})
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for both sources, got %v", err)
	}
}

func TestSubmit_MissingProviderKey(t *testing.T) {
	jobs := newFakeJobStore()
	assembly := NewAssemblyAIClient("", 5*time.Second)
	eleven := NewElevenLabsClient("", "scribe_v1", 5*time.Second)
	d := NewDispatcher(assembly, eleven, jobs, testLogger(), 10*time.Second)

	_, err := d.Submit(context.Background(), SubmitRequest{AudioURL: "https://example.com/a.mp3"})
	if !apperrors.IsType(err, apperrors.ErrorTypeConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}

	_, err = d.Submit(context.Background(), SubmitRequest{AudioURL: "https://example.com/a.mp3", Language: "ar"})
	if !apperrors.IsType(err, apperrors.ErrorTypeConfiguration) {
		t.Errorf("Expected configuration error for sync provider, got %v", err)
	}
	if len(jobs.created) != 0 {
		t.Errorf("Expected no records, got %d", len(jobs.created))
	}
}

func TestSubmit_ProviderFailureWritesNoRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	jobs := newFakeJobStore()
	d := newTestDispatcher(server.URL, "http://unused.invalid", jobs)

	_, err := d.Submit(context.Background(), SubmitRequest{AudioURL: "https://example.com/a.mp3"})
	if !apperrors.IsType(err, apperrors.ErrorTypeProvider) {
		t.Errorf("Expected provider error, got %v", err)
	}
	if len(jobs.created) != 0 {
		t.Errorf("Expected no record after provider failure, got %d", len(jobs.created))
	}
}

func TestSubmit_AsyncStoreFailureStillReturnsJobID(t *testing.T) {
	server := assemblyStub(t, nil)
	defer server.Close()

	jobs := newFakeJobStore()
	jobs.createErr = apperrors.NewPersistenceError("db down", "CREATE_TRANSCRIPTION_FAILED", nil)
	d := newTestDispatcher(server.URL, "http://unused.invalid", jobs)

	sub, err := d.Submit(context.Background(), SubmitRequest{AudioURL: "https://example.com/a.mp3"})
	if err != nil {
		t.Fatalf("Expected best-effort success, got %v", err)
	}
	if sub.JobID != "job-abc" {
		t.Errorf("Expected provider job id, got %q", sub.JobID)
	}
	if sub.RecordID != "" {
		t.Errorf("Expected empty record id, got %q", sub.RecordID)
	}
}

func TestSubmit_SyncStoreFailureFails(t *testing.T) {
	elServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "ok", "language_code": "ar"}`))
	}))
	defer elServer.Close()

	jobs := newFakeJobStore()
	jobs.createErr = apperrors.NewPersistenceError("db down", "CREATE_TRANSCRIPTION_FAILED", nil)
	d := newTestDispatcher("http://unused.invalid", elServer.URL, jobs)

	_, err := d.Submit(context.Background(), SubmitRequest{
		File:     ReadSource{Reader: strings.NewReader("audio"), FileName: "talk.mp3"},
		Language: "ar",
	})
	if !apperrors.IsType(err, apperrors.ErrorTypePersistence) {
		t.Errorf("Expected persistence error, got %v", err)
	}
}
