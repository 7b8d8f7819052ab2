package domain

// SubmissionStatus is derived once per submitter per run from LMS metadata.
type SubmissionStatus string

const (
	StatusOnTime      SubmissionStatus = "On Time"
	StatusLate        SubmissionStatus = "Late"
	StatusMissing     SubmissionStatus = "Missing"
	StatusResubmitted SubmissionStatus = "Resubmitted"
)

// ParseStatus maps loose user input ("late", "on-time") onto a status.
func ParseStatus(value string) (SubmissionStatus, bool) {
	switch normalizeStatus(value) {
	case "ontime":
		return StatusOnTime, true
	case "late":
		return StatusLate, true
	case "missing":
		return StatusMissing, true
	case "resubmitted":
		return StatusResubmitted, true
	default:
		return "", false
	}
}

func normalizeStatus(value string) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z':
			out = append(out, r)
		}
	}
	return string(out)
}

// AttachmentRef points at a file stored by the LMS.
type AttachmentRef struct {
	ID          string `yaml:"id"`
	Filename    string `yaml:"filename"`
	URL         string `yaml:"url"`
	ContentType string `yaml:"contentType"`
	Size        int64  `yaml:"size"`
}

// FileRef is an attachment after it has been downloaded to local storage.
type FileRef struct {
	Path        string
	Filename    string
	ContentType string
}

// Submission is the LMS record of one submitter's work for an assignment.
type Submission struct {
	SubmitterID   string
	Attempt       *int
	Late          bool
	Missing       bool
	WorkflowState string
	Attachments   []AttachmentRef
}

// Status derives the submission status. Missing wins over Late, Late wins
// over Resubmitted.
func (s Submission) Status() SubmissionStatus {
	switch {
	case s.Attempt == nil || s.Missing:
		return StatusMissing
	case s.Late:
		return StatusLate
	case *s.Attempt > 1:
		return StatusResubmitted
	default:
		return StatusOnTime
	}
}

// Submitted reports whether the LMS considers the work handed in.
func (s Submission) Submitted() bool {
	return s.WorkflowState == "submitted" || s.WorkflowState == "graded" || s.WorkflowState == "pending_review"
}
