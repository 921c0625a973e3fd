package networking

import (
	"fmt"
	"io"
	"strings"
)

// Status classifies a receiver reply
type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	StatusDuplicate
	StatusQueueFull
)

const (
	prefixOK        = "OK:"
	prefixDuplicate = "DUPLICATE:"
	prefixQueueFull = "QUEUE_FULL:"
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDuplicate:
		return "DUPLICATE"
	case StatusQueueFull:
		return "QUEUE_FULL"
	default:
		return "UNKNOWN"
	}
}

// Accepted is the reply for an upload queued under its original name
func Accepted(name, compressionMsg string) string {
	return fmt.Sprintf("%s File accepted: %s%s", prefixOK, name, compressionMsg)
}

// Duplicate is the reply for an upload queued under a collision-resolved name
func Duplicate(name, newName, compressionMsg string) string {
	return fmt.Sprintf("%s %s Duplicate detected, renamed: %s%s", prefixDuplicate, name, newName, compressionMsg)
}

// QueueFull is the reply for an upload dropped at admission
func QueueFull(name string) string {
	return fmt.Sprintf("%s Dropping file: %s", prefixQueueFull, name)
}

// ParseStatus inspects the prefix of a reply
func ParseStatus(msg string) Status {
	switch {
	case strings.HasPrefix(msg, prefixOK):
		return StatusOK
	case strings.HasPrefix(msg, prefixDuplicate):
		return StatusDuplicate
	case strings.HasPrefix(msg, prefixQueueFull):
		return StatusQueueFull
	default:
		return StatusUnknown
	}
}

// WriteResponse writes msg once. The caller closes the connection to delimit it.
func WriteResponse(w io.Writer, msg string) error {
	if _, err := io.WriteString(w, msg); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// ReadResponse reads until EOF, keeping at most limit bytes
func ReadResponse(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return string(data), fmt.Errorf("read response: %w", err)
	}
	return string(data), nil
}
