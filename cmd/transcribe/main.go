// Command transcribe submits audio to a running kalam server and polls
// the job until it finishes, printing status transitions along the way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lecturanotes/kalam/internal/poller"
	"github.com/lecturanotes/kalam/internal/transcription"
)

type submitResponse struct {
	Success bool    `json:"success"`
	JobID   string  `json:"jobId"`
	Status  string  `json:"status"`
	Text    *string `json:"text"`
	Error   string  `json:"error"`
}

type statusResponse struct {
	Success    bool     `json:"success"`
	Status     string   `json:"status"`
	Text       *string  `json:"text"`
	Confidence *float64 `json:"confidence"`
	Language   *string  `json:"language"`
	Error      string   `json:"error"`
}

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "kalam server base URL")
		token    = flag.String("token", os.Getenv("KALAM_TOKEN"), "bearer token")
		file     = flag.String("file", "", "path to a local audio file")
		audioURL = flag.String("url", "", "URL of remote audio")
		language = flag.String("language", "auto", "language selector (auto, en, ar, ...)")
		enhanced = flag.Bool("enhanced", false, "request enhanced accuracy")
		interval = flag.Duration("interval", 3*time.Second, "polling interval")
	)
	flag.Parse()

	if (*file == "") == (*audioURL == "") {
		log.Fatal("provide exactly one of -file and -url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 2 * time.Minute}

	sub, err := submit(ctx, client, *server, *token, *file, *audioURL, *language, *enhanced)
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}
	fmt.Printf("job %s: %s\n", sub.JobID, sub.Status)

	if transcription.JobStatus(sub.Status).Terminal() {
		printFinal(sub.Status, sub.Text, "")
		return
	}

	lastStatus := sub.Status
	p := poller.New(*interval)
	final, err := p.Poll(ctx, func(ctx context.Context) (poller.Update, error) {
		return fetchStatus(ctx, client, *server, *token, sub.JobID)
	}, func(u poller.Update) {
		if string(u.Status) != lastStatus {
			fmt.Printf("job %s: %s\n", sub.JobID, u.Status)
			lastStatus = string(u.Status)
		}
	})
	if err != nil {
		log.Fatalf("polling failed: %v", err)
	}

	var text *string
	if final.Text != "" {
		text = &final.Text
	}
	printFinal(string(final.Status), text, final.ErrorDetail)
}

func submit(ctx context.Context, client *http.Client, server, token, file, audioURL, language string, enhanced bool) (submitResponse, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()
		defer writer.Close()

		if file != "" {
			var f *os.File
			f, err = os.Open(file)
			if err != nil {
				return
			}
			defer f.Close()

			var part io.Writer
			part, err = writer.CreateFormFile("file", filepath.Base(file))
			if err != nil {
				return
			}
			if _, err = io.Copy(part, f); err != nil {
				return
			}
		} else {
			if err = writer.WriteField("audioUrl", audioURL); err != nil {
				return
			}
		}
		if err = writer.WriteField("language", language); err != nil {
			return
		}
		if enhanced {
			err = writer.WriteField("enhancedAccuracy", "true")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", server+"/api/transcribe", pr)
	if err != nil {
		return submitResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return submitResponse{}, err
	}
	defer resp.Body.Close()

	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return submitResponse{}, err
	}
	if !sub.Success {
		return submitResponse{}, fmt.Errorf("server rejected submission (status %d): %s", resp.StatusCode, sub.Error)
	}
	return sub, nil
}

func fetchStatus(ctx context.Context, client *http.Client, server, token, jobID string) (poller.Update, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", server+"/api/transcribe/"+jobID, nil)
	if err != nil {
		return poller.Update{}, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return poller.Update{}, err
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return poller.Update{}, err
	}
	if !status.Success {
		return poller.Update{}, fmt.Errorf("status read failed (status %d): %s", resp.StatusCode, status.Error)
	}

	upd := poller.Update{
		Status:      transcription.JobStatus(status.Status),
		Confidence:  status.Confidence,
		ErrorDetail: status.Error,
	}
	if status.Text != nil {
		upd.Text = *status.Text
	}
	if status.Language != nil {
		upd.Language = *status.Language
	}
	return upd, nil
}

func printFinal(status string, text *string, errorDetail string) {
	switch transcription.JobStatus(status) {
	case transcription.StatusCompleted:
		if text != nil {
			fmt.Println(*text)
		}
	case transcription.StatusError:
		if errorDetail == "" {
			errorDetail = "transcription failed"
		}
		log.Fatalf("job failed: %s", errorDetail)
	}
}
