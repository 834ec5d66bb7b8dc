package decoder

import "fmt"

// PayloadParseError is returned when a payload is malformed or carries no usable data.
type PayloadParseError struct {
	Encoding Encoding
	Reason   string
}

func (e *PayloadParseError) Error() string {
	return fmt.Sprintf("can't parse %s payload: %s", e.Encoding, e.Reason)
}

func parseErrorf(enc Encoding, format string, args ...interface{}) error {
	return &PayloadParseError{Encoding: enc, Reason: fmt.Sprintf(format, args...)}
}

// UnknownEncodingError is a configuration error, an encoding without decoder.
type UnknownEncodingError struct {
	Name string
}

func (e *UnknownEncodingError) Error() string {
	return fmt.Sprintf("unknown payload encoding %q", e.Name)
}
