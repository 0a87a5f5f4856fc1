package app

// JobState is the observable phase of a job or the coordinator.
type JobState string

const (
	StateIdle      JobState = "IDLE"
	StateFetching  JobState = "FETCHING"
	StateScoring   JobState = "SCORING"
	StatePolling   JobState = "POLLING"
	StateAnalyzing JobState = "ANALYZING"
	StateDone      JobState = "DONE"
	StateFailed    JobState = "FAILED"

	StateCheckingPrerequisites JobState = "CHECKING_PREREQUISITES"
	StateStartingJob1          JobState = "STARTING_JOB1"
	StateStartingJob2          JobState = "STARTING_JOB2"
	StateMonitoring            JobState = "MONITORING"
	StateShuttingDown          JobState = "SHUTTING_DOWN"
)
