package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to model.Status }{
		{model.StatusRequested, model.StatusUnderDriverReview},
		{model.StatusRequested, model.StatusCancelledNoDriver},
		{model.StatusUnderDriverReview, model.StatusAcceptedForming},
		{model.StatusUnderDriverReview, model.StatusRequested},
		{model.StatusAcceptedForming, model.StatusUnderClientReview},
		{model.StatusAcceptedForming, model.StatusPreorderAccepted},
		{model.StatusUnderClientReview, model.StatusDriverEnRoute},
		{model.StatusUnderClientReview, model.StatusRequested},
		{model.StatusPreorderAccepted, model.StatusDriverEnRoute},
		{model.StatusDriverEnRoute, model.StatusDriverArrived},
		{model.StatusDriverArrived, model.StatusInProgress},
		{model.StatusInProgress, model.StatusAwaitingPayment},
		{model.StatusAwaitingPayment, model.StatusCompleted},
		{model.StatusAwaitingPayment, model.StatusCancelledByParty},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to model.Status }{
		{model.StatusRequested, model.StatusDriverEnRoute},
		{model.StatusRequested, model.StatusCompleted},
		{model.StatusDriverEnRoute, model.StatusRequested},
		{model.StatusInProgress, model.StatusCompleted},
		{model.StatusCompleted, model.StatusRequested},
		{model.StatusCancelledByParty, model.StatusRequested},
		{model.StatusCancelledNoDriver, model.StatusUnderDriverReview},
	}
	for _, tc := range forbidden {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(model.StatusCompleted))
	assert.True(t, IsTerminal(model.StatusCancelledNoDriver))
	assert.True(t, IsTerminal(model.StatusCancelledByParty))

	assert.False(t, IsTerminal(model.StatusRequested))
	assert.False(t, IsTerminal(model.StatusInProgress))
	assert.False(t, IsTerminal(model.StatusAwaitingPayment))
}

func TestHasDriver(t *testing.T) {
	assert.False(t, HasDriver(model.StatusRequested))
	assert.False(t, HasDriver(model.StatusUnderDriverReview))
	assert.False(t, HasDriver(model.StatusCompleted))
	assert.False(t, HasDriver(model.StatusCancelledByParty))

	assert.True(t, HasDriver(model.StatusAcceptedForming))
	assert.True(t, HasDriver(model.StatusUnderClientReview))
	assert.True(t, HasDriver(model.StatusPreorderAccepted))
	assert.True(t, HasDriver(model.StatusDriverEnRoute))
	assert.True(t, HasDriver(model.StatusDriverArrived))
	assert.True(t, HasDriver(model.StatusInProgress))
	assert.True(t, HasDriver(model.StatusAwaitingPayment))
}
