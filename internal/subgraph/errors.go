package subgraph

import (
	"fmt"
)

// QueryError is returned when the subgraph answers with a non-success status,
// or when the request could not be delivered at all (StatusCode is then 0).
type QueryError struct {
	URL        string
	StatusCode int
	Query      string
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("Query failed. Url: %s. Error: %v\n%s", e.URL, e.Err, e.Query)
	}
	return fmt.Sprintf("Query failed. Url: %s. Return code is %d\n%s", e.URL, e.StatusCode, e.Query)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a page query exceeds its deadline
type TimeoutError struct {
	URL     string
	Timeout string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Query timed out after %s. Url: %s: %v", e.Timeout, e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when the response body lacks the expected fields
type MalformedResponseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Malformed subgraph response from %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("Malformed subgraph response from %s: %s", e.URL, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
