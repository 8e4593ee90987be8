package shared

import (
	"strings"
)

// StudentID is the externally issued, stable identifier of a student.
// The service never interprets it beyond equality and ordering.
type StudentID string

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty reports whether the id is blank.
func (s StudentID) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// NewStudentID trims and validates a raw student id.
func NewStudentID(raw string) (StudentID, error) {
	id := StudentID(strings.TrimSpace(raw))
	if id.IsEmpty() {
		return "", ErrEmptyStudentID
	}
	return id, nil
}

// Pair is an unordered pair of students normalised so that Low < High.
type Pair struct {
	Low  StudentID `json:"low"`
	High StudentID `json:"high"`
}

// NewPair returns the canonical pair for a and b in either order.
func NewPair(a, b StudentID) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// Contains reports whether id is one of the pair.
func (p Pair) Contains(id StudentID) bool {
	return p.Low == id || p.High == id
}

// Other returns the counterpart of id. ok is false when id is not in the pair.
func (p Pair) Other(id StudentID) (other StudentID, ok bool) {
	switch id {
	case p.Low:
		return p.High, true
	case p.High:
		return p.Low, true
	}
	return "", false
}

// String returns "low:high".
func (p Pair) String() string {
	return string(p.Low) + ":" + string(p.High)
}
