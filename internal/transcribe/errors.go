package transcribe

import "fmt"

// InferenceError reports a failed or malformed speech-to-text call.
type InferenceError struct {
	Provider string
	Msg      string
	Err      error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Msg)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func inferenceErr(provider string, err error, format string, args ...any) *InferenceError {
	return &InferenceError{
		Provider: provider,
		Msg:      fmt.Sprintf(format, args...),
		Err:      err,
	}
}
