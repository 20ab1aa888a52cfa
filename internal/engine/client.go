// Package engine wraps the AWS Transcribe API behind a small job-oriented
// client. Callers submit a job and get back the actual registered name, which
// is the only valid key for later status queries: the caller's hint is
// sanitized and uniquified on the way in.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"

	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/jobname"
)

// Status is an engine-reported job status. No client-side states are invented;
// the poller's TIMEOUT outcome is an error Kind, not a Status.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Job describes one transcription job as the engine reports it, plus the
// requested name bookkeeping the engine does not track.
type Job struct {
	RequestedJobName string
	ActualJobName    string
	Status           Status
	LanguageCode     string
	MediaFormat      string
	MediaURI         string
	OutputLocation   string
	FailureReason    string
}

// Summary is a job listing entry used by the cleanup sweep.
type Summary struct {
	JobName        string
	Status         Status
	CreationTime   *time.Time
	CompletionTime *time.Time
}

// API is the subset of the AWS Transcribe client the engine uses. Tests
// substitute a fake.
type API interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, in *transcribe.DeleteTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
	ListTranscriptionJobs(ctx context.Context, in *transcribe.ListTranscriptionJobsInput, opts ...func(*transcribe.Options)) (*transcribe.ListTranscriptionJobsOutput, error)
}

// Client is the transcription engine client.
type Client struct {
	api             API
	bucketName      string
	defaultLanguage string
}

// New creates a Client backed by the real AWS Transcribe service.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, &Error{Kind: KindAuthFailure, Message: "failed to load AWS configuration", Cause: err}
	}
	return NewWithAPI(transcribe.NewFromConfig(awsCfg), cfg), nil
}

// NewWithAPI creates a Client over an explicit API implementation.
func NewWithAPI(api API, cfg *config.Config) *Client {
	return &Client{
		api:             api,
		bucketName:      cfg.BucketName,
		defaultLanguage: cfg.DefaultLanguage,
	}
}

// StartInput carries the parameters for a job submission.
type StartInput struct {
	MediaURL     string // HTTPS or s3:// location of the media object
	OutputFolder string // S3 prefix the engine writes the artifact under
	JobNameHint  string // caller-supplied base identifier; sanitized and uniquified
	LanguageCode string // optional; defaults to the configured language
}

// Start submits a transcription job. The returned Job's ActualJobName is the
// uniquified name actually registered with the engine; callers must use it,
// not the hint, for all later queries.
func (c *Client) Start(ctx context.Context, in StartInput) (*Job, error) {
	if in.MediaURL == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: "media URL is required"}
	}
	if in.JobNameHint == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: "job name is required"}
	}

	mediaURI, err := jobname.ConvertToS3URI(in.MediaURL, c.bucketName)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: err.Error(), Cause: err}
	}

	language := in.LanguageCode
	if language == "" {
		language = c.defaultLanguage
	}

	actualName := jobname.Generate(in.JobNameHint)
	mediaFormat := jobname.DetectMediaFormat(in.MediaURL)
	outputKey := jobname.NormalizePath(in.OutputFolder, actualName+".json")

	out, err := c.api.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(actualName),
		LanguageCode:         types.LanguageCode(language),
		Media:                &types.Media{MediaFileUri: aws.String(mediaURI)},
		MediaFormat:          types.MediaFormat(mediaFormat),
		OutputBucketName:     aws.String(c.bucketName),
		OutputKey:            aws.String(outputKey),
	})
	if err != nil {
		return nil, classify(actualName, err)
	}

	job := jobFromAPI(out.TranscriptionJob)
	job.RequestedJobName = in.JobNameHint
	log.Printf("[engine] started transcription job %s (hint %q, format %s)", job.ActualJobName, in.JobNameHint, mediaFormat)
	return job, nil
}

// Status queries a job by its actual (uniquified) name.
func (c *Client) Status(ctx context.Context, actualJobName string) (*Job, error) {
	if actualJobName == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: "job name is required"}
	}

	out, err := c.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(actualJobName),
	})
	if err != nil {
		return nil, classify(actualJobName, err)
	}
	return jobFromAPI(out.TranscriptionJob), nil
}

// Delete removes a job from the engine.
func (c *Client) Delete(ctx context.Context, actualJobName string) error {
	if actualJobName == "" {
		return &Error{Kind: KindInvalidInput, Message: "job name is required"}
	}

	if _, err := c.api.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{
		TranscriptionJobName: aws.String(actualJobName),
	}); err != nil {
		return classify(actualJobName, err)
	}
	log.Printf("[engine] deleted transcription job %s", actualJobName)
	return nil
}

// ListByStatus lists all jobs with the given status, following pagination.
func (c *Client) ListByStatus(ctx context.Context, status Status) ([]Summary, error) {
	var summaries []Summary
	var nextToken *string

	for {
		out, err := c.api.ListTranscriptionJobs(ctx, &transcribe.ListTranscriptionJobsInput{
			MaxResults: aws.Int32(100),
			Status:     types.TranscriptionJobStatus(status),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, classify("", err)
		}

		for _, s := range out.TranscriptionJobSummaries {
			summaries = append(summaries, Summary{
				JobName:        aws.ToString(s.TranscriptionJobName),
				Status:         Status(s.TranscriptionJobStatus),
				CreationTime:   s.CreationTime,
				CompletionTime: s.CompletionTime,
			})
		}

		nextToken = out.NextToken
		if nextToken == nil {
			break
		}
	}

	return summaries, nil
}

func jobFromAPI(j *types.TranscriptionJob) *Job {
	if j == nil {
		return &Job{}
	}
	job := &Job{
		ActualJobName: aws.ToString(j.TranscriptionJobName),
		Status:        Status(j.TranscriptionJobStatus),
		LanguageCode:  string(j.LanguageCode),
		MediaFormat:   string(j.MediaFormat),
		FailureReason: aws.ToString(j.FailureReason),
	}
	if j.Media != nil {
		job.MediaURI = aws.ToString(j.Media.MediaFileUri)
	}
	if j.Transcript != nil {
		job.OutputLocation = aws.ToString(j.Transcript.TranscriptFileUri)
	}
	return job
}
