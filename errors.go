package singleton

import (
	"fmt"
)

// FetchError means a declared script could not be fetched or appended to the document.
type FetchError struct {
	Name string
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load script %q from %s: %v", e.Name, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPStatusError means a script URL answered with a non-2xx status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d for %s", e.StatusCode, e.URL)
}

// MethodNotFoundError means Call found no member under the name.
type MethodNotFoundError struct {
	Path string
	Name string
}

func (e MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s.%s", e.Path, e.Name)
}

// NotAMethodError means Call found a member that is not a Method.
type NotAMethodError struct {
	Path   string
	Name   string
	Actual string
}

func (e NotAMethodError) Error() string {
	return fmt.Sprintf("member %s.%s is not a method: %s", e.Path, e.Name, e.Actual)
}

// EmptyNameError means a namespace or a named singleton was declared without a name.
type EmptyNameError struct {
	Parent string
}

func (e EmptyNameError) Error() string {
	if e.Parent == "" {
		return "singleton name is empty"
	}
	return fmt.Sprintf("namespace name is empty under %s", e.Parent)
}
