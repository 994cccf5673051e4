package omr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
)

// Job states reported by the OMR service.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client talks to the external OMR (optical music recognition) service that
// turns PDF sheet music into animation JSON. Recognition itself happens
// out of process; this client only submits jobs and collects results.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the OMR service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// SubmitResult is the response to a processing request.
type SubmitResult struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobState is the progress record of a processing job.
type JobState struct {
	Status   string     `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message"`
	Error    string     `json:"error,omitempty"`
	Result   *JobResult `json:"result,omitempty"`
}

// JobResult is present once a job completes.
type JobResult struct {
	AnimationDataURL string `json:"animation_data_url"`
	Title            string `json:"title"`
	Composer         string `json:"composer"`
}

// SubmitPDF uploads a PDF for recognition and returns the job handle.
func (c *Client) SubmitPDF(ctx context.Context, filename string, pdf io.Reader, title, composer string, userID int64) (*SubmitResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart request: %w", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return nil, fmt.Errorf("failed to copy PDF into request: %w", err)
	}
	mw.WriteField("title", title)
	mw.WriteField("composer", composer)
	mw.WriteField("user_id", strconv.FormatInt(userID, 10))
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OMR submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OMR submit failed: status %d", resp.StatusCode)
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode OMR submit response: %w", err)
	}
	return &result, nil
}

// JobState fetches the current state of a job.
func (c *Client) JobState(ctx context.Context, jobID string) (*JobState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OMR status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("OMR job %s not found", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OMR status request failed: status %d", resp.StatusCode)
	}

	var state JobState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode OMR status: %w", err)
	}
	return &state, nil
}

// WaitForCompletion polls the job until it completes, fails or ctx is done.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, interval time.Duration) (*JobState, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := c.JobState(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch state.Status {
		case StatusCompleted:
			return state, nil
		case StatusFailed:
			return state, fmt.Errorf("OMR job %s failed: %s", jobID, state.Error)
		}
		logger.Debug("OMR job in progress",
			logger.String("job", jobID),
			logger.Int("progress", state.Progress))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FetchAnimation downloads the converter output a completed job points at
// and decodes it into validated animation data.
func (c *Client) FetchAnimation(ctx context.Context, url string) (*model.AnimationData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch animation data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch animation data: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read animation data: %w", err)
	}
	return DecodeConverterDocument(raw)
}

// converterDocument is the wire format produced by the OMR converter. It
// differs from the canonical animation format: metadata is nested and notes
// carry MIDI numbers without velocity.
type converterDocument struct {
	Metadata struct {
		Title    string `json:"title"`
		Composer string `json:"composer"`
	} `json:"metadata"`
	Notes         []converterNote `json:"notes"`
	Duration      float64         `json:"duration"`
	Tempo         int             `json:"tempo"`
	KeySignature  string          `json:"keySignature"`
	TimeSignature string          `json:"timeSignature"`
}

type converterNote struct {
	MIDI     int     `json:"midi"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Hand     string  `json:"hand,omitempty"`
	Finger   int     `json:"finger,omitempty"`
}

// normalizeHand maps the converter's long-form hand labels to the canonical
// single-letter form.
func normalizeHand(s string) model.Hand {
	switch s {
	case "left", "L", "l":
		return model.HandLeft
	case "right", "R", "r":
		return model.HandRight
	}
	return ""
}

// DecodeConverterDocument converts OMR converter output into validated
// animation data.
func DecodeConverterDocument(raw []byte) (*model.AnimationData, error) {
	var doc converterDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode converter document: %w", err)
	}

	a := &model.AnimationData{
		Version:       model.AnimationVersion,
		Title:         doc.Metadata.Title,
		Composer:      doc.Metadata.Composer,
		Duration:      doc.Duration,
		Tempo:         doc.Tempo,
		KeySignature:  doc.KeySignature,
		TimeSignature: doc.TimeSignature,
		Notes:         make([]model.Note, 0, len(doc.Notes)),
	}
	for _, n := range doc.Notes {
		pitch, err := model.MIDIToPitch(n.MIDI)
		if err != nil {
			return nil, fmt.Errorf("converter note: %w", err)
		}
		a.Notes = append(a.Notes, model.Note{
			Pitch:     pitch,
			MIDI:      n.MIDI,
			StartTime: n.Start,
			Duration:  n.Duration,
			Hand:      normalizeHand(n.Hand),
			Finger:    n.Finger,
		})
	}

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid converter document: %w", err)
	}
	a.SortNotes()
	return a, nil
}
