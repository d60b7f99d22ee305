// Package validation checks submitted audio sources before any provider
// call is made, so obviously broken submissions fail fast and cheap.
package validation

import (
	"net/url"
	"path/filepath"
	"strings"

	apperrors "github.com/lecturanotes/kalam/internal/errors"
)

// allowedAudioExtensions are the container formats the providers accept.
var allowedAudioExtensions = map[string]bool{
	".mp3":  true,
	".mp4":  true,
	".m4a":  true,
	".wav":  true,
	".aac":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
	".webm": true,
	".mpeg": true,
	".mpga": true,
	".opus": true,
}

// ValidateAudioURL checks that a remote audio source is an absolute
// http(s) URL the providers can fetch.
func ValidateAudioURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return apperrors.NewValidationError("audioUrl is not a valid URL", "INVALID_AUDIO_URL", "Provide an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.NewValidationError("audioUrl must use http or https", "INVALID_AUDIO_URL_SCHEME", "Provide an absolute http(s) URL")
	}
	if u.Host == "" {
		return apperrors.NewValidationError("audioUrl is missing a host", "INVALID_AUDIO_URL", "Provide an absolute http(s) URL")
	}
	return nil
}

// ValidateAudioFileName checks the uploaded file's extension against the
// formats the providers accept. Files without an extension pass; the
// provider is the final judge of the actual bytes.
func ValidateAudioFileName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return nil
	}
	if !allowedAudioExtensions[ext] {
		return apperrors.NewValidationError("unsupported audio format "+ext, "UNSUPPORTED_AUDIO_FORMAT", "Upload mp3, mp4, m4a, wav, aac, ogg, flac, webm or opus audio")
	}
	return nil
}
