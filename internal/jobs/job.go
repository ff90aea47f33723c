// Package jobs holds the domain types and state-machine constants shared by
// the store, scheduler, and orchestrator. It defines no behavior of its own
// beyond validating transitions and enum membership.
package jobs

import "time"

// Status is the current position of a job in the pipeline state machine.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusClaimed    Status = "claimed"
	StatusAnalyzing  Status = "analyzing"
	StatusEncoding   Status = "encoding"
	StatusVerifying  Status = "verifying"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusReverted   Status = "reverted"
)

// IsTerminal reports whether the status admits no further automatic
// transitions (a restart via the API is the only way out).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusFailed, StatusCancelled, StatusReverted:
		return true
	default:
		return false
	}
}

// Active reports whether a job in this status counts against
// concurrent_jobs.
func (s Status) Active() bool {
	switch s {
	case StatusClaimed, StatusAnalyzing, StatusEncoding, StatusVerifying:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates the job state machine. transition() in the
// store consults this table and rejects anything not listed here.
var legalTransitions = map[Status][]Status{
	StatusQueued:    {StatusClaimed},
	StatusClaimed:   {StatusAnalyzing, StatusCancelled, StatusFailed},
	StatusAnalyzing: {StatusSkipped, StatusEncoding, StatusCancelled, StatusFailed},
	StatusEncoding:  {StatusVerifying, StatusCancelled, StatusFailed},
	StatusVerifying: {StatusCompleted, StatusReverted, StatusCancelled, StatusFailed},
}

// CanTransition reports whether moving a job from "from" to "to" is legal.
// Any terminal status may only be left via an explicit restart, which is
// modeled separately (restart resets a terminal job directly to queued,
// bypassing this table and incrementing attempt_count).
func CanTransition(from, to Status) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DecisionAction is the outcome recorded by the analyzer or orchestrator
// each time it evaluates or concludes a job.
type DecisionAction string

const (
	DecisionEncode DecisionAction = "encode"
	DecisionSkip   DecisionAction = "skip"
	DecisionRevert DecisionAction = "revert"
	DecisionFail   DecisionAction = "fail"
)

// Job is one media file's pipeline instance.
type Job struct {
	ID           string    `json:"id"`
	InputPath    string    `json:"input_path"`
	OutputPath   string    `json:"output_path,omitempty"`
	Status       Status    `json:"status"`
	MTimeHash    string    `json:"mtime_hash"`
	Priority     int       `json:"priority"`
	Progress     float64   `json:"progress"`
	AttemptCount int       `json:"attempt_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Copy returns a shallow copy of the job (safe: Job has no pointer/slice
// fields).
func (j *Job) Copy() *Job {
	c := *j
	return &c
}

// Decision is an append-only audit record attached to a job.
type Decision struct {
	ID        int64          `json:"id"`
	JobID     string         `json:"job_id"`
	Action    DecisionAction `json:"action"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"created_at"`
}

// EncodeStats is recorded exactly once, when a job reaches completed.
type EncodeStats struct {
	JobID             string    `json:"job_id"`
	InputSizeBytes    int64     `json:"input_size_bytes"`
	OutputSizeBytes   int64     `json:"output_size_bytes"`
	CompressionRatio  float64   `json:"compression_ratio"`
	EncodeTimeSeconds float64   `json:"encode_time_seconds"`
	EncodeSpeed       float64   `json:"encode_speed"`
	AvgBitrateKbps    float64   `json:"avg_bitrate_kbps"`
	VMafScore         *float64  `json:"vmaf_score,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// WatchDir is a directory the watcher monitors for candidate media.
type WatchDir struct {
	ID         int64    `json:"id"`
	Path       string   `json:"path"`
	Recursive  bool     `json:"recursive"`
	Enabled    bool     `json:"enabled"`
	Extensions []string `json:"extensions,omitempty"` // nil = use scanner defaults
}

// ScheduleWindow is a time-of-day + day-of-week interval during which the
// scheduler is permitted to claim work.
type ScheduleWindow struct {
	ID         int64  `json:"id"`
	StartTime  string `json:"start_time"` // HH:MM
	EndTime    string `json:"end_time"`   // HH:MM; end < start wraps midnight
	DaysOfWeek []int  `json:"days_of_week"` // 0=Sunday..6=Saturday
	Enabled    bool   `json:"enabled"`
}

// NotificationTargetType identifies the delivery mechanism for a
// NotificationTarget.
type NotificationTargetType string

const (
	NotificationDiscord NotificationTargetType = "discord"
	NotificationGotify  NotificationTargetType = "gotify"
	NotificationWebhook NotificationTargetType = "webhook"
)

// NotificationEvent is one of the lifecycle points a NotificationTarget can
// subscribe to.
type NotificationEvent string

const (
	EventQueued    NotificationEvent = "queued"
	EventCompleted NotificationEvent = "completed"
	EventFailed    NotificationEvent = "failed"
)

// NotificationTarget is an operator-configured notification destination.
type NotificationTarget struct {
	ID          int64                    `json:"id"`
	Name        string                   `json:"name"`
	TargetType  NotificationTargetType   `json:"target_type"`
	EndpointURL string                   `json:"endpoint_url"`
	AuthToken   string                   `json:"auth_token,omitempty"`
	Events      []NotificationEvent      `json:"events"`
	Enabled     bool                     `json:"enabled"`
}

// LogEntry is one row of the rolling application log table.
type LogEntry struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	JobID     string    `json:"job_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes job counts and lifetime savings for the dashboard.
type Stats struct {
	Queued    int   `json:"queued"`
	Active    int   `json:"active"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Cancelled int   `json:"cancelled"`
	Skipped   int   `json:"skipped"`
	Reverted  int   `json:"reverted"`
	Total     int   `json:"total"`
	BytesSaved int64 `json:"bytes_saved"`
}

// DailyStat is one row of a trailing-30-day aggregate rollup.
type DailyStat struct {
	Day              string  `json:"day"` // YYYY-MM-DD
	JobsCompleted    int     `json:"jobs_completed"`
	BytesSaved       int64   `json:"bytes_saved"`
	AvgCompressionRatio float64 `json:"avg_compression_ratio"`
}
