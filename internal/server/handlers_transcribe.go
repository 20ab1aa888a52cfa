package server

import (
	"context"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/reson/transcription-service/internal/engine"
	"github.com/reson/transcription-service/internal/entitystore"
	"github.com/reson/transcription-service/internal/jobname"
	"github.com/reson/transcription-service/internal/poller"
)

// watchTimeout bounds a background watch. The poller gives up after its own
// retry budget well before this; the timeout is a backstop for the
// persistence step.
const watchTimeout = 45 * time.Minute

// handleStartTranscription starts a transcription job. Query parameters:
// media (HTTPS or s3:// URL), outputBucket (S3 folder prefix for the output
// artifact), jobName (base identifier, usually the media object key) and
// optional languageCode. The response carries the actual registered job name;
// the caller must use it, not the hint, for status queries.
func (s *Server) handleStartTranscription(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	media := q.Get("media")
	outputFolder := q.Get("outputBucket")
	jobNameHint := q.Get("jobName")

	if media == "" || outputFolder == "" || jobNameHint == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameters: media, outputBucket, jobName")
		return
	}

	job, err := s.engine.Start(r.Context(), engine.StartInput{
		MediaURL:     media,
		OutputFolder: outputFolder,
		JobNameHint:  jobNameHint,
		LanguageCode: q.Get("languageCode"),
	})
	if err != nil {
		log.Printf("Failed to start transcription job for %q: %v", jobNameHint, err)
		s.errorResponse(w, httpStatus(err), engine.UserMessage(err))
		return
	}

	s.watchJob(job)

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "true",
		"message": "Job created successfully",
		"response": map[string]string{
			"jobName":          job.ActualJobName,
			"requestedJobName": job.RequestedJobName,
			"jobStatus":        string(job.Status),
			"outputLocation":   job.OutputLocation,
		},
	})
}

// watchJob polls the started job in the background and persists its
// transcript on completion. This runs independently of the webhook path;
// whichever observes completion first writes the transcript, and both writes
// are idempotent.
func (s *Server) watchJob(job *engine.Job) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), watchTimeout)
		defer cancel()

		completed, err := s.poller.Poll(ctx, job.ActualJobName, poller.Callbacks{
			OnUpdate: func(status engine.Status, attempt int) {
				log.Printf("Job %s still %s after %d checks", job.ActualJobName, status, attempt+1)
			},
		})
		if err != nil {
			log.Printf("Polling ended without completion for %s: %v", job.ActualJobName, err)
			return
		}

		folder, keyBase := splitOutputLocation(completed.OutputLocation)
		if folder == "" || keyBase == "" {
			log.Printf("Completed job %s has no usable output location %q", completed.ActualJobName, completed.OutputLocation)
			return
		}
		s.reconcileTranscript(ctx, folder, keyBase)
	}()
}

// handleTranscriptionStatus reports engine status for an actual job name.
func (s *Server) handleTranscriptionStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("jobName")
	if name == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameter: jobName")
		return
	}

	job, err := s.engine.Status(r.Context(), name)
	if err != nil {
		log.Printf("Failed to get status for job %q: %v", name, err)
		s.errorResponse(w, httpStatus(err), engine.UserMessage(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"response": map[string]string{
			"jobName":        job.ActualJobName,
			"jobStatus":      string(job.Status),
			"outputLocation": job.OutputLocation,
			"failureReason":  job.FailureReason,
		},
	})
}

// handleDeleteTranscription deletes an engine job record.
func (s *Server) handleDeleteTranscription(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("jobName")
	if name == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required parameter: jobName")
		return
	}

	if err := s.engine.Delete(r.Context(), name); err != nil {
		log.Printf("Failed to delete job %q: %v", name, err)
		s.errorResponse(w, httpStatus(err), engine.UserMessage(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "true",
		"message": "Job deleted successfully",
	})
}

// handleStreamTranscription is reserved. Real-time streaming transcription is
// not offered by this service.
func (s *Server) handleStreamTranscription(w http.ResponseWriter, _ *http.Request) {
	s.errorResponse(w, http.StatusNotImplemented, "Streaming transcription is not supported")
}

// splitOutputLocation splits an output key like "user_id_1/acme/job_id_7/name.json"
// into its folder and the file's base name without the .json extension.
func splitOutputLocation(location string) (folder, keyBase string) {
	location = strings.Trim(location, "/")
	if location == "" {
		return "", ""
	}
	dir, file := path.Split(location)
	folder = strings.Trim(dir, "/")
	keyBase = strings.TrimSuffix(file, ".json")
	return folder, keyBase
}

// reconcileTranscript fetches the transcript artifact and writes it onto the
// owning entity. The owning entity is found by re-deriving the job ID from
// the folder convention and matching the stored object key, question first,
// then answer. Generated job names carry a unique suffix on top of the stored
// key, so the match also tries the name with that suffix stripped.
func (s *Server) reconcileTranscript(ctx context.Context, folder, keyBase string) {
	text, ok := s.persister.FetchAndExtractTranscript(ctx, keyBase, folder)
	if !ok {
		log.Printf("Could not extract transcript for key %q in folder %q", keyBase, folder)
		return
	}

	jobID, _, ok := jobname.ParseJobFolder(folder)
	if !ok {
		log.Printf("Could not derive job ID from folder %q", folder)
		return
	}

	entityType, entityID, found := s.findEntityByKey(ctx, jobID, keyBase)
	if !found {
		log.Printf("No entity found for key %q in folder %q", keyBase, folder)
		return
	}

	if s.persister.SaveTranscript(ctx, text, entityType, entityID) {
		log.Printf("Transcript saved for %s %d (job %s)", entityType, entityID, jobID)
	} else {
		log.Printf("Failed to save transcript for %s %d (job %s)", entityType, entityID, jobID)
	}
}

func (s *Server) findEntityByKey(ctx context.Context, jobID, s3Key string) (entityType entitystore.EntityType, entityID int64, found bool) {
	stripped := jobname.StripUniqueSuffix(s3Key)
	matches := func(storedKey string) bool {
		return storedKey != "" && (storedKey == s3Key || storedKey == stripped)
	}

	questions, err := s.entities.ListQuestionsByJob(ctx, jobID)
	if err != nil {
		log.Printf("Question lookup failed for job %s: %v", jobID, err)
	}
	for _, q := range questions {
		if matches(q.QuestionKey) {
			return entitystore.TypeQuestion, q.QuestionID, true
		}
	}

	answers, err := s.entities.ListAnswersByJob(ctx, jobID)
	if err != nil {
		log.Printf("Answer lookup failed for job %s: %v", jobID, err)
	}
	for _, a := range answers {
		if matches(a.AnswerKey) {
			return entitystore.TypeAnswer, a.AnswerID, true
		}
	}

	return "", 0, false
}
