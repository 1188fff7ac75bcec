package codec

import (
	"fmt"
	"unicode/utf8"
)

// maxExcerpt bounds how much of an offending document a DecodeError keeps.
const maxExcerpt = 256

// DecodeError reports a document that is not well-formed or whose envelope
// could not be located. Missing optional fields never produce one.
type DecodeError struct {
	Reason  string
	Entry   int // index of the failing feed entry, -1 outside a feed
	Excerpt string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := "codec: " + e.Reason
	if e.Entry >= 0 {
		msg = fmt.Sprintf("codec: entry %d: %s", e.Entry, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(reason string, entry int, data []byte, err error) *DecodeError {
	return &DecodeError{
		Reason:  reason,
		Entry:   entry,
		Excerpt: excerpt(data),
		Err:     err,
	}
}

func excerpt(data []byte) string {
	if len(data) <= maxExcerpt {
		return string(data)
	}
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut])
}
