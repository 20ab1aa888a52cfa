package jobname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_OutputIsAlwaysLegal(t *testing.T) {
	inputs := []string{
		"simple-key.mp4",
		"folder/with/slashes.webm",
		"spaces and !@#$%^&*() symbols",
		"",
		"ünïcödé",
	}

	for _, input := range inputs {
		name := Generate(input)
		assert.Regexp(t, JobNamePattern, name, "input %q", input)
		assert.LessOrEqual(t, len(name), 200)
	}
}

func TestGenerate_UniqueForSameInput(t *testing.T) {
	// Two calls in the same millisecond still differ thanks to the random suffix.
	a := Generate("video.mp4")
	b := Generate("video.mp4")
	assert.NotEqual(t, a, b)
}

func TestGenerate_TruncatesLongBase(t *testing.T) {
	name := Generate(strings.Repeat("x", 500))
	assert.LessOrEqual(t, len(name), 200)
	assert.Regexp(t, JobNamePattern, name)
}

func TestStripUniqueSuffix_RoundTrip(t *testing.T) {
	name := Generate("abc123.mp4")
	assert.Equal(t, "abc123.mp4", StripUniqueSuffix(name))
}

func TestStripUniqueSuffix_PlainNameUnchanged(t *testing.T) {
	assert.Equal(t, "abc123", StripUniqueSuffix("abc123"))
	assert.Equal(t, "my_video_2", StripUniqueSuffix("my_video_2"))
}

func TestDetectMediaFormat(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"video.mp4", "mp4"},
		{"clip.WEBM", "webm"},
		{"recording.mov", "mp4"}, // mov transcodes as mp4
		{"audio.mp3", "mp3"},
		{"audio.wav", "wav"},
		{"audio.flac", "flac"},
		{"audio.ogg", "ogg"},
		{"call.amr", "amr"},
		{"old.3gp", "3gp"},
		{"noextension", "mp4"},
		{"weird.xyz", "mp4"},
		{"", "mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMediaFormat(tt.name))
		})
	}
}

func TestConvertToS3URI(t *testing.T) {
	uri, err := ConvertToS3URI("https://reson-assets.s3.eu-central-1.amazonaws.com/a/b.mp4", "reson-assets")
	require.NoError(t, err)
	assert.Equal(t, "s3://reson-assets/a/b.mp4", uri)
}

func TestConvertToS3URI_AlreadyS3URI(t *testing.T) {
	uri, err := ConvertToS3URI("s3://reson-assets/a/b.mp4", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "s3://reson-assets/a/b.mp4", uri)
}

func TestConvertToS3URI_Invalid(t *testing.T) {
	var invalidErr *ErrInvalidURL

	_, err := ConvertToS3URI("", "bucket")
	require.Error(t, err)
	assert.ErrorAs(t, err, &invalidErr)

	_, err = ConvertToS3URI("https://example.com/a.mp4", "")
	require.Error(t, err)
	assert.ErrorAs(t, err, &invalidErr)

	_, err = ConvertToS3URI("not a url at all", "bucket")
	require.Error(t, err)
	assert.ErrorAs(t, err, &invalidErr)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b/c", NormalizePath("a", "b", "c"))
	assert.Equal(t, "a/b", NormalizePath("/a/", "", "b/"))
	assert.Equal(t, "", NormalizePath("", "/"))
	assert.Equal(t, "folder/file.json", NormalizePath("folder/", "/file.json"))
}

func TestFolderConvention_RoundTrip(t *testing.T) {
	// The upload path's folder naming and the webhook's parsing must agree.
	folder := AnswerFolder("7", "acme", "42", "99")
	assert.Equal(t, "user_id_7/acme/job_id_42/candidate_id_99", folder)

	jobID, candidateID, ok := ParseJobFolder(folder)
	require.True(t, ok)
	assert.Equal(t, "42", jobID)
	assert.Equal(t, "99", candidateID)

	questionFolder := JobFolder("7", "acme", "42")
	jobID, candidateID, ok = ParseJobFolder(questionFolder)
	require.True(t, ok)
	assert.Equal(t, "42", jobID)
	assert.Empty(t, candidateID)
}

func TestParseJobFolder_NoJobID(t *testing.T) {
	_, _, ok := ParseJobFolder("some/random/folder")
	assert.False(t, ok)
}
