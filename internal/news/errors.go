package news

import "fmt"

// MissingFieldError reports an article that lacks a field the active
// transform needs.
type MissingFieldError struct {
	Key    string // source object key, may be empty
	Field  string
	Reason string // optional detail, e.g. "not a string"
}

func (e *MissingFieldError) Error() string {
	msg := fmt.Sprintf("article missing field %q", e.Field)
	if e.Reason != "" {
		msg = fmt.Sprintf("article field %q %s", e.Field, e.Reason)
	}
	if e.Key != "" {
		return msg + " (key=" + e.Key + ")"
	}
	return msg
}

// DecodeError reports a listed object that is not UTF-8 encoded JSON.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SinkError reports a failed write to a sink (S3 put, index upsert).
type SinkError struct {
	Op     string // "put", "upsert"
	Target string // bucket/key or namespace/batch
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
