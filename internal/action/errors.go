package action

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrMissingActionType = errors.New("missing action type")
	ErrMalformedPayload  = errors.New("malformed action payload")
)

// DecodeError reports an action record that could not be decoded
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("decode action: %v", e.Err)
	}
	return fmt.Sprintf("decode action %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(key string, err error) *DecodeError {
	if err == nil {
		return &DecodeError{Key: key, Err: ErrMalformedPayload}
	}
	return &DecodeError{Key: key, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
}
