// Package events turns raw GitHub webhook deliveries into routed chat
// notifications.
package events

// Kind is the closed set of event families the relay understands.
type Kind int

const (
	// KindUnrecognized is the zero value: anything the relay does not
	// route. Unrecognized events never reach a dispatch queue.
	KindUnrecognized Kind = iota
	KindPullRequest
	KindReviewRequested
	KindWorkflowRun
)

func (k Kind) String() string {
	switch k {
	case KindPullRequest:
		return "pull_request"
	case KindReviewRequested:
		return "review_requested"
	case KindWorkflowRun:
		return "workflow_run"
	default:
		return "unrecognized"
	}
}

// RawEvent is one decoded, authenticated webhook delivery.
type RawEvent struct {
	Name       string // X-GitHub-Event header
	DeliveryID string // X-GitHub-Delivery header, may be empty
	Payload    []byte
}

// RoutedEvent is the classifier's output. Channel is never empty for a
// recognized kind.
type RoutedEvent struct {
	Kind       Kind
	Action     string
	Channel    string
	Body       string
	Mentions   []string // opaque mention tokens present in Body, deduplicated
	DeliveryID string
}

// Recognized reports whether the event should be dispatched.
func (e RoutedEvent) Recognized() bool {
	return e.Kind != KindUnrecognized && e.Channel != ""
}
