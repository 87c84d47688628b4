package orders

import (
	"errors"
	"fmt"

	"github.com/gehnabox/orders-service/internal/domain"
)

var (
	ErrUnknownStatus        = errors.New("unknown order status")
	ErrSameStatus           = errors.New("order is already in the requested status")
	ErrTerminalStatus       = errors.New("order is in a terminal status")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// TransitionRules is an explicit table of allowed (from, to) edges. A nil
// entry for a status means no transition may leave it.
type TransitionRules map[domain.OrderStatus][]domain.OrderStatus

// DefaultRules allows any non-terminal status to move to any other status.
// Delivered and cancelled are terminal: once an order reaches either, its
// history is closed and further transitions are rejected.
var DefaultRules = TransitionRules{
	domain.OrderStatusPending:    anyOther(domain.OrderStatusPending),
	domain.OrderStatusConfirmed:  anyOther(domain.OrderStatusConfirmed),
	domain.OrderStatusProcessing: anyOther(domain.OrderStatusProcessing),
	domain.OrderStatusShipped:    anyOther(domain.OrderStatusShipped),
	domain.OrderStatusDelivered:  nil,
	domain.OrderStatusCancelled:  nil,
}

func anyOther(from domain.OrderStatus) []domain.OrderStatus {
	var targets []domain.OrderStatus
	for _, s := range domain.AllStatuses {
		if s != from {
			targets = append(targets, s)
		}
	}
	return targets
}

// Validate checks a requested transition against the rules. It never
// mutates anything; callers apply the change only on a nil return.
func (r TransitionRules) Validate(from, to domain.OrderStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from == to {
		return fmt.Errorf("%w: %q", ErrSameStatus, from)
	}
	allowed, ok := r[from]
	if !ok || len(allowed) == 0 {
		return fmt.Errorf("%w: cannot leave %q", ErrTerminalStatus, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %q -> %q", ErrTransitionNotAllowed, from, to)
}
