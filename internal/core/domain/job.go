package domain

import "time"

// JobStatus represents the lifecycle state of a sync job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusStopped    JobStatus = "stopped"
)

// ActiveJobStatuses are the statuses a job can still make progress from.
var ActiveJobStatuses = []JobStatus{JobStatusPending, JobStatusInProgress}

// FinishedJobStatuses are the terminal statuses.
var FinishedJobStatuses = []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusStopped}

// IsValid reports whether s is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusStopped
}

// JobStats holds row counters for a sync job
type JobStats struct {
	TotalRecords     int `json:"totalRecords"`
	ProcessedRecords int `json:"processedRecords"`
	InsertedRecords  int `json:"insertedRecords"`
	UpdatedRecords   int `json:"updatedRecords"`
}

// SyncJob is the durable record of one table copy.
// Paused is orthogonal to Status and only meaningful while the job is active.
// ProcessedRecords doubles as the offset into the frozen window.
type SyncJob struct {
	JobID       string     `json:"jobId"`
	TableID     string     `json:"tableId"`
	WhseID      string     `json:"whseid"`
	Status      JobStatus  `json:"status"`
	Paused      bool       `json:"paused"`
	Cursor      string     `json:"cursor,omitempty"`
	WindowStart string     `json:"windowStart,omitempty"`
	WindowEnd   string     `json:"windowEnd,omitempty"`
	Stats       JobStats   `json:"stats"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Error       string     `json:"error,omitempty"`
}

// IsTerminal reports whether the job reached completed, failed or stopped.
func (j *SyncJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// CanRunBatch reports whether the orchestrator may start a new batch.
func (j *SyncJob) CanRunBatch() bool {
	return !j.Paused && (j.Status == JobStatusPending || j.Status == JobStatusInProgress)
}

// Clone returns a copy that shares no pointers with j.
func (j *SyncJob) Clone() *SyncJob {
	c := *j
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return &c
}

// JobPatch is a partial update applied by the job store.
// Nil fields are left untouched. When ExpectStatus is non-empty the patch only
// applies if the stored status is one of them.
type JobPatch struct {
	Status       *JobStatus
	Paused       *bool
	Stats        *JobStats
	Cursor       *string
	EndTime      *time.Time
	Error        *string
	LastUpdated  time.Time
	ExpectStatus []JobStatus
}

// Apply mutates job with the non-nil fields of the patch.
func (p JobPatch) Apply(job *SyncJob) {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Paused != nil {
		job.Paused = *p.Paused
	}
	if p.Stats != nil {
		job.Stats = *p.Stats
	}
	if p.Cursor != nil {
		job.Cursor = *p.Cursor
	}
	if p.EndTime != nil {
		t := *p.EndTime
		job.EndTime = &t
	}
	if p.Error != nil {
		job.Error = *p.Error
	}
	if !p.LastUpdated.IsZero() {
		job.LastUpdated = p.LastUpdated
	}
}

// Matches reports whether the guard of the patch accepts status.
func (p JobPatch) Matches(status JobStatus) bool {
	if len(p.ExpectStatus) == 0 {
		return true
	}
	for _, s := range p.ExpectStatus {
		if s == status {
			return true
		}
	}
	return false
}

// JobFilter narrows a job listing. Results are ordered newest first.
type JobFilter struct {
	TableID  string
	Statuses []JobStatus
	Limit    int
	Offset   int
}

// ControlAction is a dashboard request against a running job
type ControlAction string

const (
	ControlActionPause  ControlAction = "pause"
	ControlActionResume ControlAction = "resume"
	ControlActionStop   ControlAction = "stop"
)

// IsValid reports whether a is one of pause, resume or stop.
func (a ControlAction) IsValid() bool {
	return a == ControlActionPause || a == ControlActionResume || a == ControlActionStop
}

// ControlResult is the response body of a control request
type ControlResult struct {
	JobID   string        `json:"jobId"`
	Status  JobStatus     `json:"status"`
	Action  ControlAction `json:"action"`
	Success bool          `json:"success"`
	Paused  bool          `json:"paused"`
	Message string        `json:"message"`
}

// Invocation is one bounded unit of sync work for a job.
type Invocation struct {
	JobID  string
	Config *SyncConfig
}

// UpsertOutcome reports what a record upsert changed
type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)
