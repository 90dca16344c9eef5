package models

import "strings"

// ApplicationOutcome is the normalized state of a submitted application.
type ApplicationOutcome string

// ApplicationOutcome constants.
const (
	OutcomePending  ApplicationOutcome = "PENDING"
	OutcomeAccepted ApplicationOutcome = "ACCEPTED"
	OutcomeRejected ApplicationOutcome = "REJECTED"
)

// Application is one internship application submitted by the current student.
type Application struct {
	ID    JobID `json:"ID"`
	JobID JobID `json:"stageId"`

	// posting
	Domain       string `json:"stageDomaine"`
	Subject      string `json:"stageSujet"`
	Organization string `json:"entrepriseName"`

	// student
	StudentName    string `json:"etudiantName"`
	StudentEmail   string `json:"etudiantEmail"`
	StudentSchool  string `json:"etudiantInstitue"`
	StudentSection string `json:"etudiantSection"`

	// tracking
	Status       string `json:"status"`
	PostulatedAt string `json:"postulatedAt"`
}

// Outcome classifies the backend's free-form status.
// Anything that is neither waiting nor accepted counts as rejected.
func (a Application) Outcome() ApplicationOutcome {
	switch strings.ToLower(strings.TrimSpace(a.Status)) {
	case "a attente", "en attente", "pending":
		return OutcomePending
	case "accepté", "accepte", "accepted":
		return OutcomeAccepted
	default:
		return OutcomeRejected
	}
}
