// Package entitystore is the REST client for the external question/answer
// CRUD service. The store has no partial-patch semantics: updates are
// full-record PUTs, which is why the persistence adapter insists on loading a
// complete record before writing a transcript back.
package entitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error represents a failed entity store request.
type Error struct {
	Op     string
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("entity store %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("entity store %s failed: HTTP status %d", e.Op, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is a 404 from the store.
func IsNotFound(err error) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Status == http.StatusNotFound
	}
	return false
}

// Client talks to the entity store.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the store at baseURL (e.g. ".../reson-api").
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// GetQuestion loads a question record by ID.
func (c *Client) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	var q Question
	if err := c.getJSON(ctx, fmt.Sprintf("%s/question/%d", c.baseURL, id), "get question", &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// PutQuestion writes a full question record.
func (c *Client) PutQuestion(ctx context.Context, q *Question) error {
	return c.putJSON(ctx, fmt.Sprintf("%s/question/%d", c.baseURL, q.QuestionID), "put question", q)
}

// GetAnswer loads an answer record by ID.
func (c *Client) GetAnswer(ctx context.Context, id int64) (*Answer, error) {
	var a Answer
	if err := c.getJSON(ctx, fmt.Sprintf("%s/answer/%d", c.baseURL, id), "get answer", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PutAnswer writes a full answer record.
func (c *Client) PutAnswer(ctx context.Context, a *Answer) error {
	return c.putJSON(ctx, fmt.Sprintf("%s/answer/%d", c.baseURL, a.AnswerID), "put answer", a)
}

// ListQuestionsByJob lists all questions recorded for a job.
func (c *Client) ListQuestionsByJob(ctx context.Context, jobID string) ([]Question, error) {
	var qs []Question
	if err := c.getJSON(ctx, fmt.Sprintf("%s/question/job/%s", c.baseURL, jobID), "list questions by job", &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// ListAnswersByJob lists all answers recorded for a job.
func (c *Client) ListAnswersByJob(ctx context.Context, jobID string) ([]Answer, error) {
	var as []Answer
	if err := c.getJSON(ctx, fmt.Sprintf("%s/answer/job/%s", c.baseURL, jobID), "list answers by job", &as); err != nil {
		return nil, err
	}
	return as, nil
}

func (c *Client) getJSON(ctx context.Context, url, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Op: op, Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &Error{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, url, op string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Op: op, Cause: fmt.Errorf("failed to encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &Error{Op: op, Status: resp.StatusCode}
	}
	return nil
}
