package jobs

type JobType string

const (
	JobUserWelcome JobType = "user.welcome"
)

// IsValid reports whether the job type is one the worker knows how to run.
func (t JobType) IsValid() bool {
	switch t {
	case JobUserWelcome:
		return true
	default:
		return false
	}
}
