package data

import "fmt"

// Mismatch is one disagreement found by the verifier.
type Mismatch struct {
	Check    string `json:"check"`
	Key      string `json:"key"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (m Mismatch) String() string {
	s := fmt.Sprintf("%s[%s]", m.Check, m.Key)
	if m.Expected != "" || m.Actual != "" {
		s += fmt.Sprintf(": expected %s, got %s", m.Expected, m.Actual)
	}
	if m.Detail != "" {
		s += ": " + m.Detail
	}
	return s
}

// VerificationReport collects every mismatch of a sweep together with the
// number of items each check examined.
type VerificationReport struct {
	Checked    map[string]int `json:"checked"`
	Mismatches []Mismatch     `json:"mismatches"`
}

func NewVerificationReport() *VerificationReport {
	return &VerificationReport{
		Checked:    map[string]int{},
		Mismatches: []Mismatch{},
	}
}

func (r *VerificationReport) Examined(check string, n int) {
	r.Checked[check] += n
}

func (r *VerificationReport) Add(m Mismatch) {
	r.Mismatches = append(r.Mismatches, m)
}

// OK reports whether the sweep found nothing.
func (r *VerificationReport) OK() bool {
	return len(r.Mismatches) == 0
}
