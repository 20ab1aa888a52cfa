package entitystore

// EntityType distinguishes the two record kinds that carry transcripts.
type EntityType string

const (
	TypeQuestion EntityType = "question"
	TypeAnswer   EntityType = "answer"
)

// TranscriptPending is the sentinel value a freshly recorded entity carries in
// its transcript field until the pipeline fills it in.
const TranscriptPending = "NA"

// Question is a recruiter-authored video question record. The store performs
// full-record PUTs, so every field round-trips.
type Question struct {
	QuestionID         int64  `json:"question_id"`
	JobID              int64  `json:"job_id"`
	QuestionTitle      string `json:"question_title"`
	QuestionVideoURL   string `json:"question_video_url"`
	QuestionKey        string `json:"question_key"`
	QuestionTranscript string `json:"question_transcript"`
	JobS3Folder        string `json:"job_s3_folder"`
}

// RequiredFieldsMissing lists the companion fields a full-record write needs
// but this record lacks. A non-empty result is a data-integrity condition,
// not a transient failure.
func (q *Question) RequiredFieldsMissing() []string {
	var missing []string
	if q.QuestionKey == "" {
		missing = append(missing, "question_key")
	}
	if q.JobS3Folder == "" {
		missing = append(missing, "job_s3_folder")
	}
	if q.QuestionTitle == "" {
		missing = append(missing, "question_title")
	}
	if q.QuestionVideoURL == "" {
		missing = append(missing, "question_video_url")
	}
	return missing
}

// Answer is a candidate-authored video answer record.
type Answer struct {
	AnswerID         int64  `json:"answer_id"`
	JobID            int64  `json:"job_id"`
	CandidateID      int64  `json:"candidate_id"`
	AnswerTitle      string `json:"answer_title"`
	AnswerURL        string `json:"answer_url"`
	AnswerKey        string `json:"answer_key"`
	AnswerTranscript string `json:"answer_transcript"`
	JobS3Folder      string `json:"job_s3_folder"`
}

// RequiredFieldsMissing lists the companion fields a full-record write needs
// but this record lacks.
func (a *Answer) RequiredFieldsMissing() []string {
	var missing []string
	if a.CandidateID == 0 {
		missing = append(missing, "candidate_id")
	}
	if a.AnswerURL == "" {
		missing = append(missing, "answer_url")
	}
	if a.AnswerTitle == "" {
		missing = append(missing, "answer_title")
	}
	if a.AnswerKey == "" {
		missing = append(missing, "answer_key")
	}
	if a.JobS3Folder == "" {
		missing = append(missing, "job_s3_folder")
	}
	return missing
}
