package sdr

// RuntimeError reports a capture tool that cannot be found or started.
type RuntimeError struct {
	msg string
}

func NewRuntimeError(msg string) *RuntimeError {
	return &RuntimeError{msg}
}

func (e *RuntimeError) Error() string {
	return "sdr: " + e.msg
}
