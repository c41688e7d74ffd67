package service

import "fmt"

// LoadError wraps the failure of one file load. Errors from the transform
// package inside it carry the offending record index.
type LoadError struct {
	SourceFile string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.SourceFile, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
