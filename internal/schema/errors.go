package schema

import (
	"fmt"
	"time"
)

// TimeoutError reports an introspection request exceeding its limit.
type TimeoutError struct {
	Endpoint string
	Limit    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("introspection of %s timed out after %s", e.Endpoint, e.Limit)
}

// TransportError reports a non-2xx response from the upstream endpoint.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("introspection of %s failed: %s", e.Endpoint, e.Status)
}
