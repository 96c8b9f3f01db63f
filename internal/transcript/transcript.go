// Package transcript records the LLM conversation of an evolution
// session: every prompt sent and every response received, in order.
// Transcripts are what you read when a generated application came out
// wrong and you need to know what the model was actually asked.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Exchange is one prompt/response pair.
type Exchange struct {
	Phase      string    `json:"phase"`
	Iteration  int       `json:"iteration,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	System     string    `json:"system,omitempty"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	At         time.Time `json:"at"`
}

// Transcript is the ordered record of one session's exchanges. It is
// safe for concurrent recording.
type Transcript struct {
	SessionID string     `json:"session_id"`
	Prompt    string     `json:"prompt,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Exchanges []Exchange `json:"exchanges"`

	mu sync.Mutex
}

// New starts a transcript for one session.
func New(sessionID, userPrompt string) *Transcript {
	return &Transcript{
		SessionID: sessionID,
		Prompt:    userPrompt,
		StartedAt: time.Now().UTC(),
	}
}

// Record appends one exchange, stamping it when the caller did not.
func (t *Transcript) Record(ex Exchange) {
	if ex.At.IsZero() {
		ex.At = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Exchanges = append(t.Exchanges, ex)
}

// Len returns the number of recorded exchanges.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Exchanges)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeName makes a string safe to use as a filename component.
func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// Filename returns the transcript filename for a session.
func Filename(name string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-transcript.json", sanitizeName(name), ts.Format("20060102-150405"))
}

// Write serializes the transcript into dir and returns the written
// path. The filename derives from the session ID and start time.
func (t *Transcript) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating transcript dir: %w", err)
	}

	t.mu.Lock()
	data, err := json.MarshalIndent(t, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("marshaling transcript: %w", err)
	}

	path := filepath.Join(dir, Filename(t.SessionID, t.StartedAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}
	return path, nil
}

// Load reads a transcript back from disk.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing transcript %s: %w", path, err)
	}
	return &t, nil
}
