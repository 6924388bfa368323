package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RunItem describes an assembly run in a transport-friendly format.
type RunItem struct {
	ID              int64            `json:"id"`
	TextID          int64            `json:"textId"`
	Title           string           `json:"title,omitempty"`
	Status          string           `json:"status"`
	ProcessingLane  string           `json:"processingLane"`
	Progress        RunProgress      `json:"progress"`
	ErrorMessage    string           `json:"errorMessage"`
	CreatedAt       string           `json:"createdAt,omitempty"`
	UpdatedAt       string           `json:"updatedAt,omitempty"`
	CombinedFile    string           `json:"combinedFile,omitempty"`
	MixedFile       string           `json:"mixedFile,omitempty"`
	DurationSeconds float64          `json:"durationSeconds,omitempty"`
	Degradations    []RunDegradation `json:"degradations,omitempty"`
	NeedsReview     bool             `json:"needsReview"`
	ReviewReason    string           `json:"reviewReason,omitempty"`
}

// RunDegradation reports a generation or mixdown step that fell back to a
// reduced result instead of failing the run.
type RunDegradation struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// RunProgress captures stage progress information for a run.
type RunProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastRun     *RunItem       `json:"lastRun,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency. Severity
// is derived for display (ok, warn for missing optional, error for missing
// required) and left empty until a status surface fills it.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// DependencySummary aggregates dependency readiness for status displays.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	LibraryDBPath string             `json:"libraryDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	DaemonLogPath string             `json:"daemonLogPath,omitempty"`
	Workflow      WorkflowStatus     `json:"workflow"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// StatusLine is a labelled severity row for status displays.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of runs for API responses.
type QueueListResponse struct {
	Items []RunItem `json:"items"`
}

// RunItemResponse wraps a single run.
type RunItemResponse struct {
	Item RunItem `json:"item"`
}
