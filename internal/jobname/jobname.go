// Package jobname provides naming and format helpers for transcription jobs.
// AWS Transcribe job names must match a restricted character set and be
// globally unique per account, so caller-supplied identifiers (usually S3
// object keys) are sanitized and uniquified before submission.
package jobname

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// JobNamePattern is the character set AWS Transcribe accepts for job names.
// The webhook handler validates inbound job names against the same pattern,
// so generation and validation cannot drift apart.
var JobNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// maxJobNameLen is the AWS Transcribe job name length limit.
const maxJobNameLen = 200

var invalidJobNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

const randomSuffixLen = 6

// Generate derives a unique, AWS-legal job name from a base key. Characters
// outside [A-Za-z0-9._-] are replaced with underscores, then an epoch-millis
// timestamp and a short random suffix are appended so that two submissions of
// the same key never collide.
func Generate(baseKey string) string {
	sanitized := invalidJobNameChars.ReplaceAllString(baseKey, "_")
	suffix := fmt.Sprintf("_%d_%s", time.Now().UnixMilli(), randomSuffix())
	if sanitized == "" {
		sanitized = "job"
	}
	if len(sanitized)+len(suffix) > maxJobNameLen {
		sanitized = sanitized[:maxJobNameLen-len(suffix)]
	}
	return sanitized + suffix
}

// uniqueSuffixPattern matches the `_{epochMillis}_{random}` tail Generate
// appends.
var uniqueSuffixPattern = regexp.MustCompile(`_\d{10,}_[a-z0-9]{6}$`)

// StripUniqueSuffix recovers the sanitized base key from a generated job
// name. Names without the generated tail are returned unchanged, so it is
// safe to apply to externally supplied job names.
func StripUniqueSuffix(name string) string {
	return uniqueSuffixPattern.ReplaceAllString(name, "")
}

func randomSuffix() string {
	b := make([]byte, randomSuffixLen)
	for i := range b {
		b[i] = base36Chars[rand.IntN(len(base36Chars))]
	}
	return string(b)
}

// supportedMediaFormats maps file extensions to the media formats AWS
// Transcribe accepts. Extensions not listed here fall back to mp4.
var supportedMediaFormats = map[string]string{
	"mp4":  "mp4",
	"webm": "webm",
	"mov":  "mp4",
	"mp3":  "mp3",
	"wav":  "wav",
	"flac": "flac",
	"ogg":  "ogg",
	"amr":  "amr",
	"3gp":  "3gp",
}

// DefaultMediaFormat is used when a file has no extension or an unrecognized one.
const DefaultMediaFormat = "mp4"

// DetectMediaFormat maps a file name's extension to a supported engine media
// format. It never fails; unknown or missing extensions default to mp4.
func DetectMediaFormat(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if format, ok := supportedMediaFormats[ext]; ok {
		return format
	}
	return DefaultMediaFormat
}

// ErrInvalidURL indicates a media URL that could not be converted to an S3 URI.
type ErrInvalidURL struct {
	URL     string
	Message string
}

func (e *ErrInvalidURL) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", e.URL, e.Message)
}

// ConvertToS3URI rewrites an HTTPS S3 object URL into the s3://bucket/key form
// the transcription engine requires. URLs already in s3:// form are returned
// unchanged.
func ConvertToS3URI(httpsURL, bucket string) (string, error) {
	if httpsURL == "" {
		return "", &ErrInvalidURL{URL: httpsURL, Message: "empty URL"}
	}
	if strings.HasPrefix(httpsURL, "s3://") {
		return httpsURL, nil
	}
	if bucket == "" {
		return "", &ErrInvalidURL{URL: httpsURL, Message: "empty bucket name"}
	}

	parsed, err := url.Parse(httpsURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", &ErrInvalidURL{URL: httpsURL, Message: "not a valid absolute URL"}
	}

	key := strings.TrimPrefix(parsed.Path, "/")
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// NormalizePath joins path segments with single slashes, dropping empty
// segments and stripping leading/trailing slashes from each.
func NormalizePath(segments ...string) string {
	var parts []string
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg == "" {
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "/")
}
