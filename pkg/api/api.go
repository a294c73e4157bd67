// Package api contains the JSON payloads that cross the process boundary:
// the resume instructions embedded in pending task records and the webhook
// notification body. External agents and receivers consume these without
// importing internals.
package api

// ResumeInstructions tells the external agent fulfilling a suspended task
// exactly how to hand the result back and how the original caller resumes.
type ResumeInstructions struct {
	// SubmitCommand is the exact CLI invocation that records a result.
	SubmitCommand string `json:"submit_command"`

	// ResultPath is where the result document will appear once submitted.
	ResultPath string `json:"result_path"`

	// ResumeHint explains how the original invocation picks the result up
	// (re-running it is the resume mechanism).
	ResumeHint string `json:"resume_hint"`
}

// JobNotification is the webhook body posted on terminal and retrying job
// transitions.
type JobNotification struct {
	Channel     string  `json:"channel"`
	Video       string  `json:"video"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	ElapsedSec  float64 `json:"elapsed_sec"`
	RateLimited bool    `json:"rate_limited"`
}
