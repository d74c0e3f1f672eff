package models

import "time"

// ScanState is the lifecycle state of one scan run.
type ScanState string

const (
	ScanStateIdle      ScanState = "idle"
	ScanStateRunning   ScanState = "running"
	ScanStateCompleted ScanState = "completed"
	ScanStateCancelled ScanState = "cancelled"
	ScanStateErrored   ScanState = "errored"
)

// Terminal reports whether the state ends a run.
func (s ScanState) Terminal() bool {
	switch s {
	case ScanStateCompleted, ScanStateCancelled, ScanStateErrored:
		return true
	}
	return false
}

// CanResume reports whether a run that ended in state with processed of total
// entities attempted can be resumed.
func CanResume(state ScanState, processed, total int) bool {
	if processed == 0 || processed >= total {
		return false
	}
	return state == ScanStateCancelled || state == ScanStateErrored
}

// Progress is the per-entity progress payload.
type Progress struct {
	Current             int    `json:"current"`
	Total               int    `json:"total"`
	CurrentEntityName   string `json:"current_entity_name,omitempty"`
	ErrorCount          int    `json:"error_count"`
	SuccessCount        int    `json:"success_count"`
	InsufficientCredits bool   `json:"insufficient_credits,omitempty"`
	Completed           bool   `json:"completed,omitempty"`
}

// ScanSnapshot is a read-only copy of the orchestrator's run state.
type ScanSnapshot struct {
	ScanID              string     `json:"scan_id,omitempty"`
	State               ScanState  `json:"state"`
	Resumed             bool       `json:"resumed"`
	Total               int        `json:"total"`
	Processed           int        `json:"processed"`
	Remaining           int        `json:"remaining"`
	SuccessCount        int        `json:"success_count"`
	ErrorCount          int        `json:"error_count"`
	Cancelled           bool       `json:"cancelled"`
	Errored             bool       `json:"errored"`
	InsufficientCredits bool       `json:"insufficient_credits"`
	CanResume           bool       `json:"can_resume"`
	LastError           string     `json:"last_error,omitempty"`
	Summary             string     `json:"summary,omitempty"`
	ProcessedIDs        []string   `json:"processed_ids,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

// EventType tags an entry of the status event stream.
type EventType string

const (
	EventInfo      EventType = "info"
	EventError     EventType = "error"
	EventSuccess   EventType = "success"
	EventProcess   EventType = "process"
	EventProgress  EventType = "progress"
	EventScanState EventType = "scan-state"
)

// Event is one entry of the ordered status stream.
type Event struct {
	Seq       uint64        `json:"seq"`
	Type      EventType     `json:"type"`
	Message   string        `json:"message,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
	Progress  *Progress     `json:"progress,omitempty"`
	ScanState *ScanSnapshot `json:"scan_state,omitempty"`
	Time      time.Time     `json:"time"`
}
