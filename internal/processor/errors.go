package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when a video already has the maximum number
	// of runs waiting.
	ErrQueueFull = errors.New("processing queue full for video")

	// ErrClosed is returned once the registry has been closed.
	ErrClosed = errors.New("processor registry closed")
)

// ConversionError reports a failed video-to-audio conversion. When the
// conversion service reported the failure itself, Err is nil and the error
// text is exactly the service's message.
type ConversionError struct {
	VideoID string
	Msg     string
	Err     error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// DownloadError reports a failed audio download: a transport error, or a
// non-2xx response when StatusCode is set.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write of transcript, segment, job, or
// video state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
