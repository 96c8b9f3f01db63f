package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventSessionEnd    EventType = "session_complete"
	EventPhaseStart    EventType = "phase_start"
	EventPhaseComplete EventType = "phase_complete"
	EventProviderCall  EventType = "provider_call"
	EventStageResult   EventType = "stage_result"
	EventError         EventType = "error"
)

// Event is a single timestamped entry in a session log. Session is
// filled in by the logger when the event itself does not carry one, so
// lines from concurrent batch sessions stay attributable.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Session   string         `json:"session,omitempty"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(prompt, contractPath, outputDir string, maxIterations int) map[string]any {
	return map[string]any{
		"prompt":         prompt,
		"contract_path":  contractPath,
		"output_dir":     outputDir,
		"max_iterations": maxIterations,
	}
}

// SessionEndData returns event data for a session end.
func SessionEndData(success bool, iterations, filesGenerated int, durationMs int64) map[string]any {
	return map[string]any{
		"success":         success,
		"iterations":      iterations,
		"files_generated": filesGenerated,
		"duration_ms":     durationMs,
	}
}

// PhaseStartData returns event data for a phase transition.
func PhaseStartData(phase string, iteration int) map[string]any {
	return map[string]any{
		"phase":     phase,
		"iteration": iteration,
	}
}

// PhaseCompleteData returns event data for a completed phase.
func PhaseCompleteData(phase string, iteration int, status string, durationMs int64) map[string]any {
	return map[string]any{
		"phase":       phase,
		"iteration":   iteration,
		"status":      status,
		"duration_ms": durationMs,
	}
}

// ProviderCallData returns event data for one LLM generation call.
func ProviderCallData(provider, model string, durationMs int64) map[string]any {
	return map[string]any{
		"provider":    provider,
		"model":       model,
		"duration_ms": durationMs,
	}
}

// StageResultData returns event data for one validation stage result.
func StageResultData(stage string, passed bool, errors, warnings int, timeMs int64) map[string]any {
	return map[string]any{
		"stage":    stage,
		"passed":   passed,
		"errors":   errors,
		"warnings": warnings,
		"time_ms":  timeMs,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
