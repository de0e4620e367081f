// Package scrapeerr defines the error taxonomy shared across the harvest
// pipeline. Kinds decide propagation: discovery errors abort the run, fetch
// errors feed the retry waves, extraction and normalization errors are
// absorbed at panel/field granularity.
package scrapeerr

import "fmt"

// Kind classifies an error by the pipeline layer that produced it.
type Kind string

const (
	KindDiscovery     Kind = "discovery"
	KindFetch         Kind = "fetch"
	KindExtraction    Kind = "extraction"
	KindNormalization Kind = "normalization"
	KindPersistence   Kind = "persistence"
	KindNotification  Kind = "notification"
)

// Error carries the kind, the URL it relates to (when applicable) and the
// underlying cause.
type Error struct {
	Kind Kind
	URL  string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
	if e.URL != "" {
		s += " (" + e.URL + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry-wave mechanism should re-attempt the
// URL. Normalization failures are retryable because they usually indicate a
// page that rendered oddly rather than a permanent layout change.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindFetch, KindNormalization:
		return true
	default:
		return false
	}
}

// New creates an Error of the given kind.
func New(kind Kind, url, msg string, err error) *Error {
	return &Error{Kind: kind, URL: url, Msg: msg, Err: err}
}

// Discovery wraps a category-level failure. These abort the run.
func Discovery(url, msg string, err error) *Error {
	return New(KindDiscovery, url, msg, err)
}

// Fetch wraps a per-URL load failure.
func Fetch(url string, err error) *Error {
	return New(KindFetch, url, "product page failed to load", err)
}

// Extraction wraps a per-panel failure.
func Extraction(url, msg string, err error) *Error {
	return New(KindExtraction, url, msg, err)
}

// Normalization wraps a malformed numeric token.
func Normalization(msg string, err error) *Error {
	return New(KindNormalization, "", msg, err)
}

// Persistence wraps a per-record storage failure.
func Persistence(msg string, err error) *Error {
	return New(KindPersistence, "", msg, err)
}
