package services

import "github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"

// transitions is the full lifecycle graph. Every status change in the
// service goes through CanTransition, no exceptions.
var transitions = map[model.Status][]model.Status{
	model.StatusRequested: {
		model.StatusUnderDriverReview,
		model.StatusCancelledNoDriver,
		model.StatusCancelledByParty,
	},
	model.StatusUnderDriverReview: {
		model.StatusAcceptedForming,
		model.StatusRequested, // driver rejected, back to the pool
		model.StatusCancelledNoDriver,
		model.StatusCancelledByParty,
	},
	model.StatusAcceptedForming: {
		model.StatusUnderClientReview,
		model.StatusPreorderAccepted,
		model.StatusCancelledByParty,
	},
	model.StatusUnderClientReview: {
		model.StatusDriverEnRoute,
		model.StatusRequested, // client rejected this driver
		model.StatusCancelledByParty,
	},
	model.StatusPreorderAccepted: {
		model.StatusDriverEnRoute,
		model.StatusCancelledByParty,
	},
	model.StatusDriverEnRoute: {
		model.StatusDriverArrived,
		model.StatusCancelledByParty,
	},
	model.StatusDriverArrived: {
		model.StatusInProgress,
		model.StatusCancelledByParty,
	},
	model.StatusInProgress: {
		model.StatusAwaitingPayment,
		model.StatusCancelledByParty,
	},
	model.StatusAwaitingPayment: {
		model.StatusCompleted,
		model.StatusCancelledByParty,
	},
}

func CanTransition(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses with no outgoing edges.
func IsTerminal(s model.Status) bool {
	return len(transitions[s]) == 0
}

// HasDriver reports statuses during which a current-order row must
// exist. The row is created on the edge into AcceptedForming and
// removed on any edge out of this set.
func HasDriver(s model.Status) bool {
	switch s {
	case model.StatusAcceptedForming,
		model.StatusUnderClientReview,
		model.StatusPreorderAccepted,
		model.StatusDriverEnRoute,
		model.StatusDriverArrived,
		model.StatusInProgress,
		model.StatusAwaitingPayment:
		return true
	}
	return false
}
