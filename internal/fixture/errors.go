package fixture

import (
	"errors"
	"fmt"
)

// RequestError is returned for any unexpected response from the product API.
// Body is the response body verbatim.
type RequestError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("failed to %s %s, status: %d, body: %s", e.Method, e.URL, e.Status, e.Body)
}

// IsRequestError reports whether err wraps a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
