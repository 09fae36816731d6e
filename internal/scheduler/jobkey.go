package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// Concern names one scheduled worry of an order. A job id is always
// derived from (order, concern, optional subject), never assembled ad
// hoc, so a transition can cancel exactly the jobs it supersedes.
type Concern string

const (
	// ConcernDispatch is the no-driver-found auto-cancel timer.
	ConcernDispatch Concern = "dispatch"
	// ConcernFlip switches a pre-order to "driver en route" at pickup time.
	ConcernFlip Concern = "switch_order_status"
	// ConcernRemind is a pre-order reminder addressed to one user.
	ConcernRemind Concern = "remind"
	// ConcernRemind30 / ConcernRemind10 are the trip-almost-over reminders.
	ConcernRemind30 Concern = "30min"
	ConcernRemind10 Concern = "10min"
)

// JobKey identifies one scheduled job of one order.
type JobKey struct {
	OrderID   int64
	Concern   Concern
	SubjectID int64 // user the job addresses, only for ConcernRemind
}

func DispatchKey(orderID int64) JobKey {
	return JobKey{OrderID: orderID, Concern: ConcernDispatch}
}

func FlipKey(orderID int64) JobKey {
	return JobKey{OrderID: orderID, Concern: ConcernFlip}
}

func RemindKey(orderID, userID int64) JobKey {
	return JobKey{OrderID: orderID, Concern: ConcernRemind, SubjectID: userID}
}

func Remind30Key(orderID int64) JobKey {
	return JobKey{OrderID: orderID, Concern: ConcernRemind30}
}

func Remind10Key(orderID int64) JobKey {
	return JobKey{OrderID: orderID, Concern: ConcernRemind10}
}

// String renders the job id in the store format: the dispatch timer is
// keyed by the bare order id, reminders carry the subject id.
func (k JobKey) String() string {
	switch k.Concern {
	case ConcernDispatch:
		return strconv.FormatInt(k.OrderID, 10)
	case ConcernRemind:
		return fmt.Sprintf("%d_remind_%d", k.OrderID, k.SubjectID)
	default:
		return fmt.Sprintf("%d_%s", k.OrderID, k.Concern)
	}
}

// ParseJobKey is the inverse of String.
func ParseJobKey(id string) (JobKey, error) {
	parts := strings.Split(id, "_")

	orderID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return JobKey{}, fmt.Errorf("parse job id %q: %w", id, err)
	}

	switch {
	case len(parts) == 1:
		return DispatchKey(orderID), nil
	case parts[1] == string(ConcernRemind) && len(parts) == 3:
		userID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return JobKey{}, fmt.Errorf("parse job id %q: %w", id, err)
		}
		return RemindKey(orderID, userID), nil
	default:
		return JobKey{OrderID: orderID, Concern: Concern(strings.Join(parts[1:], "_"))}, nil
	}
}
