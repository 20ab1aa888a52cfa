package jobname

import (
	"fmt"
	"regexp"
)

// S3 folder layout for recorded media. Company questions live under
// user_id_{uid}/{company}/job_id_{jid}; candidate answers add a
// candidate_id_{cid} segment. The webhook handler recovers entity identifiers
// from a job's output folder by parsing this layout, so both sides share
// these helpers rather than duplicating the pattern.
var (
	jobIDPattern       = regexp.MustCompile(`job_id_(\d+)`)
	candidateIDPattern = regexp.MustCompile(`candidate_id_(\d+)`)
)

// JobFolder builds the canonical S3 folder for a job's question recordings.
func JobFolder(userID, company string, jobID string) string {
	return NormalizePath(fmt.Sprintf("user_id_%s", userID), company, fmt.Sprintf("job_id_%s", jobID))
}

// AnswerFolder builds the canonical S3 folder for a candidate's answer recordings.
func AnswerFolder(userID, company string, jobID, candidateID string) string {
	return NormalizePath(JobFolder(userID, company, jobID), fmt.Sprintf("candidate_id_%s", candidateID))
}

// ParseJobFolder extracts the job ID, and candidate ID when present, from an
// S3 folder path following the canonical layout. ok is false when the folder
// carries no job ID.
func ParseJobFolder(folder string) (jobID, candidateID string, ok bool) {
	m := jobIDPattern.FindStringSubmatch(folder)
	if m == nil {
		return "", "", false
	}
	jobID = m[1]
	if cm := candidateIDPattern.FindStringSubmatch(folder); cm != nil {
		candidateID = cm[1]
	}
	return jobID, candidateID, true
}
