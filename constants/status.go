package constants

// JobStatus is the canonical lifecycle status for an analysis job.
type JobStatus string

// Stable values (these exact strings go over the wire and into the DB).
const (
	JobStatusPending    JobStatus = "pending"    // accepted, not yet started
	JobStatusProcessing JobStatus = "processing" // pipeline running
	JobStatusCompleted  JobStatus = "completed"  // terminal success
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Pipeline stage labels shown to polling clients. The coordinator writes the
// label before invoking the stage, so a concurrent status read always reflects
// the step about to run or just completed.
const (
	StageQueued     = "Queued"
	StageExtracting = "Extracting text from PDF"
	StageDetecting  = "Detecting risks with AI model"
	StageAdvisory   = "Generating legal advisory"
	StageSaving     = "Saving results to cloud"
	StagePreserving = "Saving analysis data"
	StageCleanup    = "Cleaning up temporary files"
	StageDone       = "Analysis complete"
)

// Progress checkpoints matching the stage labels above, monotonic per job.
const (
	ProgressExtracting = 10
	ProgressDetecting  = 40
	ProgressAdvisory   = 70
	ProgressSaving     = 85
	ProgressPreserving = 90
	ProgressCleanup    = 95
	ProgressDone       = 100
)
