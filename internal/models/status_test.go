package models

import (
	"testing"

	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stretchr/testify/assert"
)

func TestTransitionIntent(t *testing.T) {
	allowed := [][2]IntentStatus{
		{IntentRequiresPaymentMethod, IntentProcessing},
		{IntentRequiresPaymentMethod, IntentFailed},
		{IntentRequiresPaymentMethod, IntentExpired},
		{IntentProcessing, IntentSucceeded},
		{IntentProcessing, IntentFailed},
		{IntentProcessing, IntentExpired},
	}
	for _, pair := range allowed {
		got, err := TransitionIntent(pair[0], pair[1])
		assert.NoError(t, err, "%s -> %s", pair[0], pair[1])
		assert.Equal(t, pair[1], got)
	}

	rejected := [][2]IntentStatus{
		{IntentRequiresPaymentMethod, IntentSucceeded},
		{IntentSucceeded, IntentFailed},
		{IntentSucceeded, IntentProcessing},
		{IntentExpired, IntentProcessing},
		{IntentFailed, IntentSucceeded},
		{IntentProcessing, IntentRequiresPaymentMethod},
	}
	for _, pair := range rejected {
		got, err := TransitionIntent(pair[0], pair[1])
		assert.Error(t, err, "%s -> %s", pair[0], pair[1])
		assert.Equal(t, pair[0], got)
		assert.Equal(t, xerrors.KindInvalidState, xerrors.KindOf(err))
	}
}

func TestIntentStatusTerminal(t *testing.T) {
	assert.False(t, IntentRequiresPaymentMethod.Terminal())
	assert.False(t, IntentProcessing.Terminal())
	assert.True(t, IntentSucceeded.Terminal())
	assert.True(t, IntentFailed.Terminal())
	assert.True(t, IntentExpired.Terminal())
}

func TestTransitionOrder(t *testing.T) {
	_, err := TransitionOrder(OrderPendingPayment, OrderPaid)
	assert.NoError(t, err)
	_, err = TransitionOrder(OrderPaid, OrderRefunded)
	assert.NoError(t, err)

	_, err = TransitionOrder(OrderPaid, OrderPendingPayment)
	assert.Error(t, err)
	_, err = TransitionOrder(OrderPaid, OrderCancelled)
	assert.Error(t, err)
	_, err = TransitionOrder(OrderCancelled, OrderPaid)
	assert.Error(t, err)
}

func TestTransitionLicense(t *testing.T) {
	_, err := TransitionLicense(LicenseActive, LicenseExpired)
	assert.NoError(t, err)
	_, err = TransitionLicense(LicenseSuspended, LicenseActive)
	assert.NoError(t, err)
	_, err = TransitionLicense(LicenseExpired, LicenseActive)
	assert.Error(t, err)
}

func TestAttemptStatusFor(t *testing.T) {
	assert.Equal(t, AttemptSucceeded, AttemptStatusFor(IntentSucceeded))
	assert.Equal(t, AttemptExpired, AttemptStatusFor(IntentExpired))
	assert.Equal(t, AttemptFailed, AttemptStatusFor(IntentFailed))
}
