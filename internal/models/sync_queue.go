package models

import "time"

// SyncRunPhase describes where a bulk sync run is in its lifecycle.
type SyncRunPhase string

const (
	SyncPhaseIdle      SyncRunPhase = "idle"
	SyncPhaseRunning   SyncRunPhase = "running"
	SyncPhasePaused    SyncRunPhase = "paused"
	SyncPhaseStopped   SyncRunPhase = "stopped"
	SyncPhaseCompleted SyncRunPhase = "completed"
)

// SyncQueueState is the process-wide state of an in-flight bulk sync run.
// The queue holds remaining, not-yet-started usernames only; the item
// currently being processed is removed from the queue before it starts.
type SyncQueueState struct {
	Phase            SyncRunPhase `json:"phase"`
	Queue            []string     `json:"queue"`
	CurrentlySyncing string       `json:"currently_syncing,omitempty"`
	Paused           bool         `json:"paused"`
	Stopped          bool         `json:"stopped"`
	Total            int          `json:"total"`
	Processed        int          `json:"processed"`
	LastFullSyncAt   *time.Time   `json:"last_full_sync_at,omitempty"`
}
