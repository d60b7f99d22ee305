package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/lecturanotes/kalam/internal/config"
	apperrors "github.com/lecturanotes/kalam/internal/errors"
	"github.com/lecturanotes/kalam/internal/middleware"
	"github.com/lecturanotes/kalam/internal/store"
	"github.com/lecturanotes/kalam/internal/transcription"
)

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, middleware.UserIDKey, userID)
}

// Fakes

type fakeDispatcher struct {
	submitFn func(ctx context.Context, req transcription.SubmitRequest) (transcription.Submission, error)
	lastReq  transcription.SubmitRequest
}

func (f *fakeDispatcher) Submit(ctx context.Context, req transcription.SubmitRequest) (transcription.Submission, error) {
	f.lastReq = req
	return f.submitFn(ctx, req)
}

type fakeResolver struct {
	resolveFn func(ctx context.Context, jobID, ownerID string) (transcription.Resolution, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, jobID, ownerID string) (transcription.Resolution, error) {
	return f.resolveFn(ctx, jobID, ownerID)
}

type fakeDetector struct {
	detectFn func(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error)
}

func (f *fakeDetector) Detect(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error) {
	return f.detectFn(ctx, src, audioURL)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeRecordStore struct {
	transcriptions []store.Transcription
	notifications  []store.Notification
	err            error
}

func (f *fakeRecordStore) CreateTranscription(ctx context.Context, arg store.CreateTranscriptionParams) (store.Transcription, error) {
	if f.err != nil {
		return store.Transcription{}, f.err
	}
	rec := store.Transcription{
		ID: arg.ID, UserID: arg.UserID, JobID: arg.JobID, Name: arg.Name,
		AudioURL: arg.AudioURL, Text: arg.Text, Status: arg.Status, Language: arg.Language,
	}
	f.transcriptions = append(f.transcriptions, rec)
	return rec, nil
}

func (f *fakeRecordStore) GetTranscription(ctx context.Context, id, userID string) (store.Transcription, error) {
	if f.err != nil {
		return store.Transcription{}, f.err
	}
	for _, rec := range f.transcriptions {
		if rec.ID == id && rec.UserID == userID {
			return rec, nil
		}
	}
	return store.Transcription{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
}

func (f *fakeRecordStore) ListTranscriptions(ctx context.Context, userID string) ([]store.Transcription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Transcription
	for _, rec := range f.transcriptions {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) UpdateTranscription(ctx context.Context, id, userID string, name, text *string) (store.Transcription, error) {
	for i, rec := range f.transcriptions {
		if rec.ID == id && rec.UserID == userID {
			if name != nil {
				rec.Name = *name
			}
			if text != nil {
				rec.Text = text
			}
			f.transcriptions[i] = rec
			return rec, nil
		}
	}
	return store.Transcription{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
}

func (f *fakeRecordStore) DeleteTranscription(ctx context.Context, id, userID string) error {
	for i, rec := range f.transcriptions {
		if rec.ID == id && rec.UserID == userID {
			f.transcriptions = append(f.transcriptions[:i], f.transcriptions[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
}

func (f *fakeRecordStore) CountTranscriptionsByStatus(ctx context.Context, userID string) (store.StatusCounts, error) {
	var counts store.StatusCounts
	for _, rec := range f.transcriptions {
		if rec.UserID != userID {
			continue
		}
		switch rec.Status {
		case "queued":
			counts.Queued++
		case "processing":
			counts.Processing++
		case "completed":
			counts.Completed++
		case "error":
			counts.Errored++
		}
	}
	return counts, nil
}

func (f *fakeRecordStore) ListNotifications(ctx context.Context, userID string) ([]store.Notification, error) {
	return f.notifications, nil
}

func (f *fakeRecordStore) MarkNotificationRead(ctx context.Context, id, userID string) error { return nil }
func (f *fakeRecordStore) MarkAllNotificationsRead(ctx context.Context, userID string) error { return nil }
func (f *fakeRecordStore) DeleteNotification(ctx context.Context, id, userID string) error { return nil }

func testServer(dispatcher Dispatcher, resolver Resolver, detector Detector, records RecordStore, tasks TaskEnqueuer) *Server {
	cfg := &config.Config{Transcription: config.TranscriptionConfig{PollIntervalSeconds: 3}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, dispatcher, resolver, detector, records, tasks, nil, logger)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, fileContent string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(fileContent))
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func TestHandleTranscribe_Unauthorized(t *testing.T) {
	srv := testServer(nil, nil, nil, nil, nil)

	req := httptest.NewRequest("POST", "/api/transcribe", strings.NewReader("audioUrl=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	srv.HandleTranscribe(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestHandleTranscribe_AsyncAccepted(t *testing.T) {
	dispatcher := &fakeDispatcher{submitFn: func(ctx context.Context, req transcription.SubmitRequest) (transcription.Submission, error) {
		return transcription.Submission{JobID: "job-1", Status: transcription.StatusQueued, Provider: transcription.ProviderAssemblyAI}, nil
	}}
	tasks := &fakeEnqueuer{}
	srv := testServer(dispatcher, nil, nil, nil, tasks)

	body, contentType := multipartBody(t, map[string]string{
		"language":         "auto",
		"enhancedAccuracy": "true",
	}, "file", "lecture.mp3", "audio-bytes")

	req := httptest.NewRequest("POST", "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleTranscribe(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rr.Code, rr.Body.String())
	}
	var resp transcribeResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Success || resp.JobID != "job-1" || resp.Status != "queued" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if dispatcher.lastReq.OwnerID != "user-1" || !dispatcher.lastReq.EnhancedAccuracy {
		t.Errorf("unexpected submit request: %+v", dispatcher.lastReq)
	}
	if dispatcher.lastReq.File.FileName != "lecture.mp3" {
		t.Errorf("expected file forwarded, got %+v", dispatcher.lastReq.File)
	}
	if len(tasks.tasks) != 1 {
		t.Fatalf("expected one watch task, got %d", len(tasks.tasks))
	}
}

func TestHandleTranscribe_SyncCompleted(t *testing.T) {
	text := "النص"
	dispatcher := &fakeDispatcher{submitFn: func(ctx context.Context, req transcription.SubmitRequest) (transcription.Submission, error) {
		return transcription.Submission{
			JobID: "el-1", Status: transcription.StatusCompleted,
			Provider: transcription.ProviderElevenLabs, Text: &text,
		}, nil
	}}
	tasks := &fakeEnqueuer{}
	srv := testServer(dispatcher, nil, nil, nil, tasks)

	req := httptest.NewRequest("POST", "/api/transcribe", strings.NewReader("audioUrl=https://example.com/a.mp3&language=ar"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleTranscribe(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp transcribeResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Text == nil || *resp.Text != text {
		t.Errorf("expected text in response, got %+v", resp)
	}
	if len(tasks.tasks) != 0 {
		t.Errorf("sync submissions must not enqueue watch tasks, got %d", len(tasks.tasks))
	}
}

func TestHandleTranscribe_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperrors.NewValidationError("bad input", "INVALID_AUDIO_SOURCE", ""), http.StatusBadRequest},
		{"configuration", apperrors.NewConfigurationError("no key", "ASSEMBLYAI_KEY_MISSING"), http.StatusInternalServerError},
		{"provider", apperrors.NewProviderError("upstream down", "CREATE_ERROR", nil), http.StatusBadGateway},
		{"timeout", apperrors.NewTimeoutError("too slow", "SUBMIT_TIMEOUT", nil), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{submitFn: func(ctx context.Context, req transcription.SubmitRequest) (transcription.Submission, error) {
				return transcription.Submission{}, tt.err
			}}
			srv := testServer(dispatcher, nil, nil, nil, nil)

			req := httptest.NewRequest("POST", "/api/transcribe", strings.NewReader("audioUrl=https://example.com/a.mp3"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req = req.WithContext(withUserID(req.Context(), "user-1"))
			rr := httptest.NewRecorder()

			srv.HandleTranscribe(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			var resp errorResponse
			json.Unmarshal(rr.Body.Bytes(), &resp)
			if resp.Success {
				t.Error("expected success false")
			}
		})
	}
}

func statusRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/transcribe/{id}", srv.HandleTranscribeStatus)
	return r
}

func TestHandleTranscribeStatus_Anonymous(t *testing.T) {
	var gotOwner string
	text := "hello"
	resolver := &fakeResolver{resolveFn: func(ctx context.Context, jobID, ownerID string) (transcription.Resolution, error) {
		gotOwner = ownerID
		return transcription.Resolution{Record: store.Transcription{
			JobID: jobID, Status: "completed", Text: &text,
		}}, nil
	}}
	srv := testServer(nil, resolver, nil, nil, nil)

	req := httptest.NewRequest("GET", "/api/transcribe/job-1", nil)
	rr := httptest.NewRecorder()
	statusRouter(srv).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotOwner != "" {
		t.Errorf("expected empty owner for anonymous read, got %q", gotOwner)
	}
	var resp statusResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "completed" || resp.Text == nil || *resp.Text != "hello" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleTranscribeStatus_NotFound(t *testing.T) {
	resolver := &fakeResolver{resolveFn: func(ctx context.Context, jobID, ownerID string) (transcription.Resolution, error) {
		return transcription.Resolution{}, apperrors.NewNotFoundError("transcription not found", "TRANSCRIPTION_NOT_FOUND", "")
	}}
	srv := testServer(nil, resolver, nil, nil, nil)

	req := httptest.NewRequest("GET", "/api/transcribe/missing", nil)
	rr := httptest.NewRecorder()
	statusRouter(srv).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestHandleDetectLanguage(t *testing.T) {
	detector := &fakeDetector{detectFn: func(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error) {
		if audioURL != "https://example.com/a.mp3" {
			t.Errorf("unexpected audio URL %q", audioURL)
		}
		return "ar", nil
	}}
	srv := testServer(nil, nil, detector, nil, nil)

	req := httptest.NewRequest("POST", "/api/detect-language", strings.NewReader("audioUrl=https://example.com/a.mp3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleDetectLanguage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp detectResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Language != "ar" {
		t.Errorf("expected ar, got %q", resp.Language)
	}
}

func TestHandleDetectLanguage_Timeout(t *testing.T) {
	detector := &fakeDetector{detectFn: func(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error) {
		return "", apperrors.NewTimeoutError("language detection did not finish in time", "DETECTION_TIMEOUT", nil)
	}}
	srv := testServer(nil, nil, detector, nil, nil)

	req := httptest.NewRequest("POST", "/api/detect-language", strings.NewReader("audioUrl=https://example.com/a.mp3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleDetectLanguage(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rr.Code)
	}
}

func TestTranscriptionCRUD(t *testing.T) {
	records := &fakeRecordStore{transcriptions: []store.Transcription{
		{ID: "rec-1", UserID: "user-1", JobID: "job-1", Name: "Lecture 1", Status: "completed"},
		{ID: "rec-2", UserID: "user-2", JobID: "job-2", Name: "Someone else's", Status: "queued"},
	}}
	srv := testServer(nil, nil, nil, records, nil)

	r := chi.NewRouter()
	r.Get("/api/transcriptions", srv.HandleListTranscriptions)
	r.Post("/api/transcriptions", srv.HandleCreateTranscription)
	r.Get("/api/transcriptions/{id}", srv.HandleGetTranscription)
	r.Patch("/api/transcriptions/{id}", srv.HandleUpdateTranscription)
	r.Delete("/api/transcriptions/{id}", srv.HandleDeleteTranscription)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(withUserID(req.Context(), "user-1"))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	// List only shows the caller's records
	rr := do("GET", "/api/transcriptions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rr.Code)
	}
	var listResp struct {
		Transcriptions []transcriptionView `json:"transcriptions"`
	}
	json.Unmarshal(rr.Body.Bytes(), &listResp)
	if len(listResp.Transcriptions) != 1 || listResp.Transcriptions[0].ID != "rec-1" {
		t.Errorf("unexpected list: %+v", listResp.Transcriptions)
	}

	// Create registers an external job
	rr = do("POST", "/api/transcriptions", `{"jobId": "ext-1", "name": "External"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rr.Code, rr.Body.String())
	}

	// Rename
	rr = do("PATCH", "/api/transcriptions/rec-1", `{"name": "Renamed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update failed: %d", rr.Code)
	}

	// Empty update rejected
	rr = do("PATCH", "/api/transcriptions/rec-1", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty update, got %d", rr.Code)
	}

	// Cannot touch another user's record
	rr = do("DELETE", "/api/transcriptions/rec-2", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign record, got %d", rr.Code)
	}

	// Delete own record
	rr = do("DELETE", "/api/transcriptions/rec-1", "")
	if rr.Code != http.StatusOK {
		t.Errorf("delete failed: %d", rr.Code)
	}
}

func TestHandleDashboardStats(t *testing.T) {
	records := &fakeRecordStore{transcriptions: []store.Transcription{
		{ID: "a", UserID: "user-1", Status: "completed"},
		{ID: "b", UserID: "user-1", Status: "completed"},
		{ID: "c", UserID: "user-1", Status: "processing"},
		{ID: "d", UserID: "user-2", Status: "error"},
	}}
	srv := testServer(nil, nil, nil, records, nil)

	req := httptest.NewRequest("GET", "/api/dashboard/stats", nil)
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleDashboardStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Stats dashboardStats `json:"stats"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Stats.Total != 3 || resp.Stats.Completed != 2 || resp.Stats.Processing != 1 {
		t.Errorf("unexpected stats: %+v", resp.Stats)
	}
}

func TestHandleTranscribe_RejectsBadSources(t *testing.T) {
	srv := testServer(nil, nil, nil, nil, nil)

	req := httptest.NewRequest("POST", "/api/transcribe", strings.NewReader("audioUrl=ftp://example.com/a.mp3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()
	srv.HandleTranscribe(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for ftp URL, got %d", rr.Code)
	}

	body, contentType := multipartBody(t, nil, "file", "slides.pdf", "not-audio")
	req = httptest.NewRequest("POST", "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr = httptest.NewRecorder()
	srv.HandleTranscribe(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for pdf upload, got %d", rr.Code)
	}
}

type fakeDetectionCache struct {
	entries map[string]string
	sets    int
}

func (f *fakeDetectionCache) Get(ctx context.Context, audioURL string) string {
	return f.entries[audioURL]
}

func (f *fakeDetectionCache) Set(ctx context.Context, audioURL, language string) {
	f.entries[audioURL] = language
	f.sets++
}

func TestHandleDetectLanguage_CacheHitSkipsDetector(t *testing.T) {
	detector := &fakeDetector{detectFn: func(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error) {
		t.Error("detector should not run on a cache hit")
		return "", nil
	}}
	cache := &fakeDetectionCache{entries: map[string]string{"https://example.com/a.mp3": "ar"}}
	cfg := &config.Config{Transcription: config.TranscriptionConfig{PollIntervalSeconds: 3}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg, nil, nil, detector, nil, nil, cache, logger)

	req := httptest.NewRequest("POST", "/api/detect-language", strings.NewReader("audioUrl=https://example.com/a.mp3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleDetectLanguage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp detectResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Language != "ar" {
		t.Errorf("expected cached ar, got %q", resp.Language)
	}
}

func TestHandleDetectLanguage_CachesResult(t *testing.T) {
	detector := &fakeDetector{detectFn: func(ctx context.Context, src transcription.ReadSource, audioURL string) (string, error) {
		return "en", nil
	}}
	cache := &fakeDetectionCache{entries: map[string]string{}}
	cfg := &config.Config{Transcription: config.TranscriptionConfig{PollIntervalSeconds: 3}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg, nil, nil, detector, nil, nil, cache, logger)

	req := httptest.NewRequest("POST", "/api/detect-language", strings.NewReader("audioUrl=https://example.com/b.mp3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	srv.HandleDetectLanguage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cache.sets != 1 || cache.entries["https://example.com/b.mp3"] != "en" {
		t.Errorf("expected result cached, got %+v", cache.entries)
	}
}
