package orders

import "strings"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// pending is the only non-terminal state.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusFailed: true, StatusCancelled: true},
	StatusPaid:      {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// ParseStatus accepts the four lowercase values only; surrounding space is trimmed.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}
