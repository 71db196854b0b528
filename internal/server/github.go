package server

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"chartci/internal/core"
)

type pushPayload struct {
	Ref     string `json:"ref"`
	Deleted bool   `json:"deleted"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

var pullRequestActions = []string{"opened", "synchronize", "reopened"}

// translateGitHub maps a verified webhook onto an Event. ok is false for
// deliveries that are valid but start nothing (tags, branch deletions,
// labels, pull requests against other branches).
func translateGitHub(eventType string, body []byte, mainBranch string) (ev core.Event, ok bool, err error) {
	switch eventType {
	case "push":
		var p pushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return core.Event{}, false, fmt.Errorf("decode push payload: %w", err)
		}
		branch, isBranch := strings.CutPrefix(p.Ref, "refs/heads/")
		if !isBranch || p.Deleted {
			return core.Event{}, false, nil
		}
		return core.Event{Type: core.EventPush, Branch: branch, IsMain: branch == mainBranch}, true, nil

	case "pull_request":
		var p pullRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return core.Event{}, false, fmt.Errorf("decode pull_request payload: %w", err)
		}
		if !slices.Contains(pullRequestActions, p.Action) || p.PullRequest.Base.Ref != mainBranch {
			return core.Event{}, false, nil
		}
		return core.Event{Type: core.EventPullRequest, Branch: p.PullRequest.Head.Ref, IsMain: true}, true, nil
	}
	return core.Event{}, false, nil
}
