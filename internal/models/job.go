package models

// JobState is the lifecycle state of an OCR job.
// There is no failed state: a failed start discards the job.
type JobState string

const (
	JobNotStarted JobState = "not_started"
	JobRunning    JobState = "running"
	JobFinished   JobState = "finished"
)

// Job tracks one parse request from start to finish.
// ResultDir is only set once State is JobFinished.
type Job struct {
	TaskID    string   `json:"taskId"`
	State     JobState `json:"state"`
	ResultDir string   `json:"resultDir,omitempty"`
}

// Finished reports whether the job has a result directory to browse
func (j Job) Finished() bool {
	return j.State == JobFinished && j.ResultDir != ""
}
