package core

import "strings"

// EventType is the kind of trigger that started a run.
type EventType string

const (
	EventPush        EventType = "push"
	EventPullRequest EventType = "pull_request"
	EventSchedule    EventType = "schedule"
)

// ParseEventType maps a raw trigger name onto a known EventType.
func ParseEventType(raw string) (EventType, error) {
	switch t := EventType(strings.ToLower(strings.TrimSpace(raw))); t {
	case EventPush, EventPullRequest, EventSchedule:
		return t, nil
	}
	return "", &UnsupportedTriggerError{Type: raw}
}

// Event is the immutable trigger for exactly one Run.
// For pull requests Branch is the head branch.
type Event struct {
	Type   EventType `json:"type"`
	Branch string    `json:"branch"`
	IsMain bool      `json:"is_main"`
}

// Validate rejects events whose type is not a known trigger.
func (e Event) Validate() error {
	_, err := ParseEventType(string(e.Type))
	return err
}

// EventPayload is the wire shape of an incoming trigger.
type EventPayload struct {
	Type        string `json:"type"`
	Branch      string `json:"branch"`
	PullRequest bool   `json:"pull_request"`
}

// ToEvent converts the payload into an Event. IsMain is derived from
// mainBranch; pull requests are always treated as opened against main.
func (p EventPayload) ToEvent(mainBranch string) (Event, error) {
	raw := p.Type
	if raw == "" && p.PullRequest {
		raw = string(EventPullRequest)
	}
	t, err := ParseEventType(raw)
	if err != nil {
		return Event{}, err
	}
	if p.PullRequest && t != EventPullRequest {
		return Event{}, &UnsupportedTriggerError{Type: raw + " (pull_request=true)"}
	}

	branch := strings.TrimPrefix(p.Branch, "refs/heads/")
	ev := Event{Type: t, Branch: branch}
	switch t {
	case EventPush:
		ev.IsMain = branch == mainBranch
	case EventPullRequest:
		ev.IsMain = true
	}
	return ev, nil
}

// Key groups events that supersede each other: a newer event with the
// same key makes an older run stale.
func (e Event) Key() string {
	return string(e.Type) + ":" + e.Branch
}
