package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	for raw, want := range map[string]EventType{
		"push":         EventPush,
		"PULL_REQUEST": EventPullRequest,
		" schedule ":   EventSchedule,
	} {
		got, err := ParseEventType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseEventType("workflow_dispatch")
	var unsupported *UnsupportedTriggerError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "workflow_dispatch", unsupported.Type)
}

func TestEventPayloadToEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload EventPayload
		want    Event
	}{
		{
			name:    "push to main",
			payload: EventPayload{Type: "push", Branch: "refs/heads/main"},
			want:    Event{Type: EventPush, Branch: "main", IsMain: true},
		},
		{
			name:    "push to feature",
			payload: EventPayload{Type: "push", Branch: "feature-x"},
			want:    Event{Type: EventPush, Branch: "feature-x"},
		},
		{
			name:    "pull request flag only",
			payload: EventPayload{Branch: "feature-x", PullRequest: true},
			want:    Event{Type: EventPullRequest, Branch: "feature-x", IsMain: true},
		},
		{
			name:    "schedule",
			payload: EventPayload{Type: "schedule"},
			want:    Event{Type: EventSchedule},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.payload.ToEvent("main")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventPayloadRejectsMisclassifiedPullRequest(t *testing.T) {
	_, err := EventPayload{Type: "schedule", PullRequest: true}.ToEvent("main")
	var unsupported *UnsupportedTriggerError
	assert.ErrorAs(t, err, &unsupported)

	_, err = EventPayload{Type: "tag"}.ToEvent("main")
	assert.ErrorAs(t, err, &unsupported)
}

func TestEventKey(t *testing.T) {
	a := Event{Type: EventPush, Branch: "main"}
	b := Event{Type: EventPullRequest, Branch: "main"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), Event{Type: EventPush, Branch: "main", IsMain: true}.Key())
}
