package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusFulfilled      Status = "FULFILLED"
	StatusCancelled      Status = "CANCELLED"
)

// validNext holds the guarded transitions. Cancellation and
// AdminService.Transition enforce it; AdminService.UpdateStatus is the
// operator override that does not.
var validNext = map[Status]map[Status]bool{
	StatusCreated:        {StatusPendingPayment: true, StatusCancelled: true},
	StatusPendingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:           {StatusFulfilled: true},
	StatusFulfilled:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}
