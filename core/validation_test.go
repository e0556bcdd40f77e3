package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *Event {
	return &Event{
		Source:     "slack",
		ExternalID: "C042-msg-881",
		Title:      "deploy checklist",
		Path:       "/channels/eng/deploy-checklist",
		Content:    "Before every deploy, run the smoke suite.",
		ACL:        ACL{Allow: []Identity{{Provider: "slack", ExternalID: "U-alice"}}},
		Version:    "v3",
		EventTime:  time.Now().UTC().Add(-time.Minute),
	}
}

func TestValidateEvent(t *testing.T) {
	t.Run("valid event passes", func(t *testing.T) {
		require.NoError(t, ValidateEvent(validEvent()))
	})

	t.Run("nil event", func(t *testing.T) {
		err := ValidateEvent(nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("empty source", func(t *testing.T) {
		event := validEvent()
		event.Source = ""
		err := ValidateEvent(event)
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("empty external id", func(t *testing.T) {
		event := validEvent()
		event.ExternalID = ""
		err := ValidateEvent(event)
		assert.ErrorIs(t, err, ErrEmptyExternalID)
	})

	t.Run("empty content rejected unless delete", func(t *testing.T) {
		event := validEvent()
		event.Content = ""
		assert.ErrorIs(t, ValidateEvent(event), ErrEmptyContent)

		event.Delete = true
		assert.NoError(t, ValidateEvent(event))
	})

	t.Run("missing event time", func(t *testing.T) {
		event := validEvent()
		event.EventTime = time.Time{}
		assert.ErrorIs(t, ValidateEvent(event), ErrInvalidEventTime)
	})

	t.Run("future event time", func(t *testing.T) {
		event := validEvent()
		event.EventTime = time.Now().Add(time.Hour)
		assert.ErrorIs(t, ValidateEvent(event), ErrInvalidEventTime)
	})

	t.Run("malformed acl identity", func(t *testing.T) {
		event := validEvent()
		event.ACL.Allow = []Identity{{Provider: "slack"}}
		err := ValidateEvent(event)
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, ErrInvalidACL)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrProvider))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrValidation))
	assert.False(t, IsRetryable(nil))
}
