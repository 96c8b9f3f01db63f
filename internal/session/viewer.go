package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionFile represents an evolution log file on disk.
type SessionFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListSessions finds .jsonl evolution log files in dir, newest first.
func ListSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), "-evolution.jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, SessionFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from an evolution log file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable session timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " EVOLUTION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		elapsed := ev.Timestamp.Sub(start)
		ts := formatDuration(elapsed)

		switch ev.Type {
		case EventSessionStart:
			out, _ := ev.Data["output_dir"].(string) //nolint:errcheck
			max := jsonNumber(ev.Data["max_iterations"])
			fmt.Fprintf(w, "[%s] 🚀 Session started  output=%s  max_iterations=%d\n", ts, out, max)

		case EventPhaseStart:
			phase, _ := ev.Data["phase"].(string) //nolint:errcheck
			iter := jsonNumber(ev.Data["iteration"])
			fmt.Fprintf(w, "[%s] ▶  Phase %s (iteration %d)\n", ts, phase, iter)

		case EventPhaseComplete:
			phase, _ := ev.Data["phase"].(string)   //nolint:errcheck
			status, _ := ev.Data["status"].(string) //nolint:errcheck
			dur := jsonNumber(ev.Data["duration_ms"])
			icon := "✓"
			if status != "done" {
				icon = "✗"
			}
			fmt.Fprintf(w, "[%s] %s  Phase %s [%s] (%dms)\n", ts, icon, phase, status, dur)

		case EventProviderCall:
			provider, _ := ev.Data["provider"].(string) //nolint:errcheck
			model, _ := ev.Data["model"].(string)       //nolint:errcheck
			dur := jsonNumber(ev.Data["duration_ms"])
			fmt.Fprintf(w, "[%s]    ↳ %s/%s (%dms)\n", ts, provider, model, dur)

		case EventStageResult:
			stage, _ := ev.Data["stage"].(string) //nolint:errcheck
			passed, _ := ev.Data["passed"].(bool) //nolint:errcheck
			errs := jsonNumber(ev.Data["errors"])
			icon := "✗"
			if passed {
				icon = "✓"
			}
			fmt.Fprintf(w, "[%s]    %s Stage %s  errors=%d\n", ts, icon, stage, errs)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventSessionEnd:
			success, _ := ev.Data["success"].(bool) //nolint:errcheck
			iters := jsonNumber(ev.Data["iterations"])
			files := jsonNumber(ev.Data["files_generated"])
			dur := jsonNumber(ev.Data["duration_ms"])
			icon := "🏁"
			if !success {
				icon = "💥"
			}
			fmt.Fprintf(w, "[%s] %s Session complete  success=%t  iterations=%d  files=%d  (%dms)\n",
				ts, icon, success, iters, files, dur)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}
