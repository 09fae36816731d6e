package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobKeyString(t *testing.T) {
	assert.Equal(t, "42", DispatchKey(42).String())
	assert.Equal(t, "42_remind_7", RemindKey(42, 7).String())
	assert.Equal(t, "42_switch_order_status", FlipKey(42).String())
	assert.Equal(t, "42_30min", Remind30Key(42).String())
	assert.Equal(t, "42_10min", Remind10Key(42).String())
}

func TestParseJobKey(t *testing.T) {
	cases := []JobKey{
		DispatchKey(1),
		RemindKey(15, 99),
		FlipKey(7),
		Remind30Key(1001),
		Remind10Key(1001),
	}
	for _, want := range cases {
		got, err := ParseJobKey(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseJobKeyInvalid(t *testing.T) {
	_, err := ParseJobKey("not-a-number")
	assert.Error(t, err)

	_, err = ParseJobKey("12_remind_abc")
	assert.Error(t, err)
}
