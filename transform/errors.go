package transform

import "fmt"

// RecordError rejects one source record. Index is the zero-based position of
// the record in its source array; Path narrows it to a child when set.
type RecordError struct {
	Entity string
	Index  int
	Path   string
	Key    string
	Reason string
	Err    error
}

func (e *RecordError) Error() string {
	loc := fmt.Sprintf("%s record %d", e.Entity, e.Index)
	if e.Path != "" {
		loc += " " + e.Path
	}
	if e.Key != "" {
		loc += fmt.Sprintf(" (%s)", e.Key)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// CapacityError means the surrogate id encoding cannot hold the input without
// two rows sharing an id.
type CapacityError struct {
	Scope    string
	Key      string
	Count    int
	Capacity int
}

func (e *CapacityError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q has %d entries, capacity is %d", e.Scope, e.Key, e.Count, e.Capacity)
	}
	return fmt.Sprintf("%s has %d entries, capacity is %d", e.Scope, e.Count, e.Capacity)
}
