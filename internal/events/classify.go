package events

import (
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/hookrelay/internal/config"
)

// Resolver looks up a mention token for a GitHub username.
type Resolver interface {
	Resolve(username string) (string, bool)
}

// Routes is the static kind → channel policy.
type Routes struct {
	PullRequest     string
	ReviewRequested string
	WorkflowRun     string
	Fallback        string
	PullRequestRole string // role ID pinged when a PR is opened, optional
}

// RoutesFromConfig builds the routing table; an unset review channel
// shares the PR channel.
func RoutesFromConfig(cfg config.RoutesConfig) Routes {
	return Routes{
		PullRequest:     cfg.PullRequestChannel,
		ReviewRequested: cfg.ReviewTarget(),
		WorkflowRun:     cfg.WorkflowChannel,
		Fallback:        cfg.FallbackChannel,
		PullRequestRole: cfg.PullRequestRoleID,
	}
}

// ChannelFor returns the destination for k, or "" when k is unroutable.
func (r Routes) ChannelFor(k Kind) string {
	var ch string
	switch k {
	case KindPullRequest:
		ch = r.PullRequest
	case KindReviewRequested:
		ch = r.ReviewRequested
	case KindWorkflowRun:
		ch = r.WorkflowRun
	default:
		return ""
	}
	if ch == "" {
		ch = r.Fallback
	}
	return ch
}

// DefaultPullRequestActions are the pull_request actions routed when no
// explicit list is configured.
var DefaultPullRequestActions = []string{"opened", "reopened", "closed", "synchronize", "ready_for_review", "converted_to_draft"}

// DefaultWorkflowActions are the workflow_run actions routed by default.
var DefaultWorkflowActions = []string{"completed"}

// Classifier maps raw deliveries to routed events. It holds only
// immutable state and is safe for concurrent use.
type Classifier struct {
	routes          Routes
	mentions        Resolver
	prActions       map[string]bool
	workflowActions map[string]bool
	logger          *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPullRequestActions replaces the known pull_request action set.
// "review_requested" is always handled separately.
func WithPullRequestActions(actions ...string) Option {
	return func(c *Classifier) {
		if len(actions) > 0 {
			c.prActions = toSet(actions)
		}
	}
}

// WithWorkflowActions replaces the known workflow_run action set.
func WithWorkflowActions(actions ...string) Option {
	return func(c *Classifier) {
		if len(actions) > 0 {
			c.workflowActions = toSet(actions)
		}
	}
}

// WithLogger sets the logger used for dropped events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier creates a classifier for the given routes. mentions may
// be nil, in which case no reviewer is ever mentioned.
func NewClassifier(routes Routes, mentions Resolver, opts ...Option) *Classifier {
	c := &Classifier{
		routes:          routes,
		mentions:        mentions,
		prActions:       toSet(DefaultPullRequestActions),
		workflowActions: toSet(DefaultWorkflowActions),
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify never fails: malformed or unknown input yields KindUnrecognized.
func (c *Classifier) Classify(raw RawEvent) RoutedEvent {
	ev, reason := c.classify(raw)
	if ev.Kind == KindUnrecognized {
		c.logger.Debug("events: unrecognized delivery",
			"event", raw.Name, "delivery_id", raw.DeliveryID, "reason", reason)
		return RoutedEvent{Kind: KindUnrecognized, Action: ev.Action, DeliveryID: raw.DeliveryID}
	}

	ev.Channel = c.routes.ChannelFor(ev.Kind)
	if ev.Channel == "" {
		c.logger.Debug("events: no channel configured",
			"kind", ev.Kind.String(), "delivery_id", raw.DeliveryID)
		return RoutedEvent{Kind: KindUnrecognized, Action: ev.Action, DeliveryID: raw.DeliveryID}
	}
	ev.DeliveryID = raw.DeliveryID
	ev.Mentions = dedupe(ev.Mentions)
	return ev
}

func (c *Classifier) classify(raw RawEvent) (RoutedEvent, string) {
	switch raw.Name {
	case "pull_request":
		var p pullRequestEvent
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return RoutedEvent{}, "decode: " + err.Error()
		}
		if p.Action == "review_requested" {
			return c.reviewRequested(&p)
		}
		if !c.prActions[p.Action] {
			return RoutedEvent{Action: p.Action}, "action not routed"
		}
		return c.pullRequest(&p)

	case "workflow_run":
		var p workflowRunEvent
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return RoutedEvent{}, "decode: " + err.Error()
		}
		if !c.workflowActions[p.Action] {
			return RoutedEvent{Action: p.Action}, "action not routed"
		}
		return c.workflowRun(&p)

	default:
		return RoutedEvent{}, "event not routed"
	}
}

func (c *Classifier) pullRequest(p *pullRequestEvent) (RoutedEvent, string) {
	if !validPullRequest(p) {
		return RoutedEvent{Action: p.Action}, "missing pull request fields"
	}

	ev := RoutedEvent{Kind: KindPullRequest, Action: p.Action}
	var role string
	if p.Action == "opened" && c.routes.PullRequestRole != "" {
		role = roleMention(c.routes.PullRequestRole)
		ev.Mentions = append(ev.Mentions, role)
	}
	ev.Body = renderPullRequest(p, role)
	return ev, ""
}

func (c *Classifier) reviewRequested(p *pullRequestEvent) (RoutedEvent, string) {
	if !validPullRequest(p) {
		return RoutedEvent{Action: p.Action}, "missing pull request fields"
	}

	ev := RoutedEvent{Kind: KindReviewRequested, Action: p.Action}
	switch {
	case p.RequestedReviewer != nil && p.RequestedReviewer.Login != "":
		login := p.RequestedReviewer.Login
		var token string
		if c.mentions != nil {
			if t, ok := c.mentions.Resolve(login); ok {
				token = t
				ev.Mentions = []string{t}
			}
		}
		ev.Body = renderReview(p, reviewerText(login, token), token)
	case p.RequestedTeam != nil && (p.RequestedTeam.Name != "" || p.RequestedTeam.Slug != ""):
		name := p.RequestedTeam.Name
		if name == "" {
			name = p.RequestedTeam.Slug
		}
		ev.Body = renderReview(p, "team "+code(name), "")
	default:
		return RoutedEvent{Action: p.Action}, "missing requested reviewer"
	}
	return ev, ""
}

func (c *Classifier) workflowRun(p *workflowRunEvent) (RoutedEvent, string) {
	if p.WorkflowRun == nil || p.WorkflowRun.Name == "" || p.Repository == nil || p.Repository.FullName == "" {
		return RoutedEvent{Action: p.Action}, "missing workflow run fields"
	}
	return RoutedEvent{
		Kind:   KindWorkflowRun,
		Action: p.Action,
		Body:   renderWorkflowRun(p),
	}, ""
}

func validPullRequest(p *pullRequestEvent) bool {
	pr := p.PullRequest
	if pr == nil || pr.Title == "" || pr.User == nil || pr.User.Login == "" {
		return false
	}
	if p.Repository == nil || p.Repository.FullName == "" {
		return false
	}
	return prNumber(p) > 0
}

func prNumber(p *pullRequestEvent) int {
	if p.PullRequest != nil && p.PullRequest.Number > 0 {
		return p.PullRequest.Number
	}
	return p.Number
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

// dedupe drops repeated tokens, keeping first-seen order.
func dedupe(tokens []string) []string {
	if len(tokens) < 2 {
		return tokens
	}
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
