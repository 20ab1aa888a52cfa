// Package transcript parses and validates AWS Transcribe output artifacts.
// All of the shape uncertainty of the engine's JSON lives here: callers get a
// typed Artifact or a typed error, never a panic.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Artifact is the transcript JSON the engine deposits in S3.
type Artifact struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
	Status string `json:"status"`
}

// artifactSchema is the structural contract for an engine output artifact:
// results.transcripts must be a non-empty array whose first element carries a
// string transcript field.
const artifactSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["results"],
	"properties": {
		"results": {
			"type": "object",
			"required": ["transcripts"],
			"properties": {
				"transcripts": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"required": ["transcript"],
						"properties": {
							"transcript": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(artifactSchema)

// FormatError reports the first structural problem found in an artifact.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid transcript format: %s", e.Message)
}

// ValidateFormat checks an artifact's structure against the schema. On
// failure it returns a *FormatError naming the first failing check, in the
// same order a reader would probe the document: object-ness, results,
// transcripts, array-ness, non-emptiness, transcript text.
func ValidateFormat(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		// Not parseable as JSON at all.
		return &FormatError{Message: "Invalid JSON structure: not an object"}
	}
	if result.Valid() {
		return nil
	}
	return classifyFormatFailure(raw)
}

// classifyFormatFailure re-probes an artifact that failed schema validation to
// produce the first failing reason in document order.
func classifyFormatFailure(raw []byte) *FormatError {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &FormatError{Message: "Invalid JSON structure: not an object"}
	}

	resultsRaw, ok := doc["results"]
	if !ok || string(resultsRaw) == "null" {
		return &FormatError{Message: "Missing results field"}
	}

	var results map[string]json.RawMessage
	if err := json.Unmarshal(resultsRaw, &results); err != nil {
		return &FormatError{Message: "Missing results field"}
	}

	transcriptsRaw, ok := results["transcripts"]
	if !ok || string(transcriptsRaw) == "null" {
		return &FormatError{Message: "Missing transcripts field"}
	}

	var transcripts []json.RawMessage
	if err := json.Unmarshal(transcriptsRaw, &transcripts); err != nil {
		return &FormatError{Message: "Transcripts must be an array"}
	}

	if len(transcripts) == 0 {
		return &FormatError{Message: "No transcripts found in response"}
	}

	return &FormatError{Message: "Invalid transcript text format"}
}

// Parse validates and decodes an artifact.
func Parse(raw []byte) (*Artifact, error) {
	if err := ValidateFormat(raw); err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, &FormatError{Message: "Invalid JSON structure: not an object"}
	}
	return &artifact, nil
}

// Extract returns the trimmed transcript text from an artifact, or "" when
// the artifact is structurally invalid or the text is empty after trimming.
// It never returns an error; absence of a usable transcript is the signal.
func Extract(raw []byte) string {
	artifact, err := Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(artifact.Results.Transcripts[0].Transcript)
}
