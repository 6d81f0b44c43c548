package docservice

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamTimeout = errors.New("document server timeout")
	ErrEmptyResult     = errors.New("conversion finished without a file url")
)

// ConversionError carries the negative error code reported by the
// conversion service. A non-zero code is terminal and must not be retried.
type ConversionError struct {
	Code int
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion service error: %s", conversionMessage(e.Code))
}

func conversionMessage(code int) string {
	switch code {
	case -20:
		return "encrypt signature error"
	case -8:
		return "document signature error"
	case -7:
		return "document request error"
	case -6:
		return "database error"
	case -5:
		return "unexpected guid"
	case -4:
		return "download error"
	case -3:
		return "conversion error"
	case -2:
		return "conversion timeout"
	case -1:
		return "conversion unknown error"
	default:
		return fmt.Sprintf("code = %d", code)
	}
}
