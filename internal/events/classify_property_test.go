package events

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/nextlevelbuilder/hookrelay/internal/mention"
)

var (
	genLogin = rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9-]{0,15}`)
	genText  = rapid.StringMatching(`[ -~]{1,60}`) // printable ASCII incl. '@', '<', '`'
	genToken = rapid.StringMatching(`<@[0-9]{6,18}>`)
)

// The destination channel is a function of the event kind alone.
func TestClassify_ChannelDependsOnlyOnKind(t *testing.T) {
	c := NewClassifier(testRoutes, nil)

	rapid.Check(t, func(rt *rapid.T) {
		action := rapid.SampledFrom(DefaultPullRequestActions).Draw(rt, "action")
		p := prPayload(action, genText.Draw(rt, "title"), genLogin.Draw(rt, "author"))
		p["pull_request"].(map[string]any)["merged"] = rapid.Bool().Draw(rt, "merged")
		p["pull_request"].(map[string]any)["draft"] = rapid.Bool().Draw(rt, "draft")

		ev := c.Classify(RawEvent{Name: "pull_request", Payload: mustJSON(rt, p)})
		if ev.Kind != KindPullRequest || ev.Channel != testRoutes.PullRequest {
			rt.Fatalf("pull_request routed to %v/%q", ev.Kind, ev.Channel)
		}

		wp := workflowPayload("completed", rapid.SampledFrom([]any{nil, "success", "failure", "cancelled"}).Draw(rt, "conclusion"))
		wp["workflow_run"].(map[string]any)["name"] = genText.Draw(rt, "workflow")
		ev = c.Classify(RawEvent{Name: "workflow_run", Payload: mustJSON(rt, wp)})
		if ev.Kind != KindWorkflowRun || ev.Channel != testRoutes.WorkflowRun {
			rt.Fatalf("workflow_run routed to %v/%q", ev.Kind, ev.Channel)
		}

		rp := reviewPayload(genLogin.Draw(rt, "requester"), genLogin.Draw(rt, "reviewer"))
		ev = c.Classify(RawEvent{Name: "pull_request", Payload: mustJSON(rt, rp)})
		if ev.Kind != KindReviewRequested || ev.Channel != testRoutes.ReviewRequested {
			rt.Fatalf("review routed to %v/%q", ev.Kind, ev.Channel)
		}
	})
}

// A resolved reviewer's token appears in the body exactly once, even when
// other user-controlled fields try to smuggle it in.
func TestClassify_ResolvedReviewerMentionedOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reviewer := genLogin.Draw(rt, "reviewer")
		token := genToken.Draw(rt, "token")
		dir, err := mention.NewDirectory(map[string]string{reviewer: token})
		if err != nil {
			rt.Fatal(err)
		}
		c := NewClassifier(testRoutes, dir)

		p := reviewPayload(genLogin.Draw(rt, "requester"), reviewer)
		title := genText.Draw(rt, "title")
		if rapid.Bool().Draw(rt, "inject") {
			title = title + " " + token
		}
		p["pull_request"].(map[string]any)["title"] = title

		ev := c.Classify(RawEvent{Name: "pull_request", Payload: mustJSON(rt, p)})
		if ev.Kind != KindReviewRequested {
			rt.Fatalf("kind = %v", ev.Kind)
		}
		if n := strings.Count(ev.Body, token); n != 1 {
			rt.Fatalf("token %q appears %d times in %q", token, n, ev.Body)
		}
		if len(ev.Mentions) != 1 || ev.Mentions[0] != token {
			rt.Fatalf("mentions = %v", ev.Mentions)
		}
	})
}

// An unresolved reviewer is rendered by name and nobody is mentioned.
func TestClassify_UnresolvedReviewerPlain(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reviewer := genLogin.Draw(rt, "reviewer")
		other := genLogin.Filter(func(s string) bool { return s != reviewer }).Draw(rt, "other")
		dir, err := mention.NewDirectory(map[string]string{other: genToken.Draw(rt, "token")})
		if err != nil {
			rt.Fatal(err)
		}
		c := NewClassifier(testRoutes, dir)

		ev := c.Classify(RawEvent{Name: "pull_request", Payload: mustJSON(rt, reviewPayload(genLogin.Draw(rt, "requester"), reviewer))})
		if !strings.Contains(ev.Body, reviewer) {
			rt.Fatalf("body %q missing reviewer %q", ev.Body, reviewer)
		}
		if len(ev.Mentions) != 0 {
			rt.Fatalf("mentions = %v, want empty", ev.Mentions)
		}
	})
}

// Arbitrary bytes never panic and never produce a routable event without
// a channel.
func TestClassify_ArbitraryInputIsTotal(t *testing.T) {
	c := NewClassifier(testRoutes, nil)
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.SampledFrom([]string{"pull_request", "workflow_run", "push", "issues", ""}).Draw(rt, "name")
		payload := rapid.SliceOf(rapid.Byte()).Draw(rt, "payload")
		ev := c.Classify(RawEvent{Name: name, Payload: payload})
		if ev.Kind != KindUnrecognized && ev.Channel == "" {
			rt.Fatalf("recognized event without channel: %+v", ev)
		}
	})
}
