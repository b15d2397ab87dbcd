package events

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// zwsp is inserted after '@' in user-controlled text so a PR title cannot
// ping @everyone or forge a mention.
const zwsp = "\u200b"

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

// clean defuses user-controlled text. Besides neutralizing '@', it breaks
// any literal occurrence of the given tokens so a token appears in the
// body only where the renderer put it.
func clean(s string, tokens ...string) string {
	s = strings.ReplaceAll(s, "@", "@"+zwsp)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		_, size := utf8.DecodeRuneInString(t)
		s = strings.ReplaceAll(s, t, t[:size]+zwsp+t[size:])
	}
	return s
}

// code wraps s in an inline code span.
func code(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

func actionLabel(p *pullRequestEvent) string {
	if p.Action == "closed" && p.PullRequest.Merged {
		return "closed (merged)"
	}
	return strings.ReplaceAll(p.Action, "_", " ")
}

// prContext renders the block shared by PR and review notifications.
func prContext(p *pullRequestEvent, avoid string) string {
	pr := p.PullRequest
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** #%d: **%s** by %s",
		clean(p.Repository.FullName, avoid),
		prNumber(p),
		clean(pr.Title, avoid),
		code(clean(pr.User.Login, avoid)))
	if pr.Draft {
		b.WriteString(" (draft)")
	}
	if pr.Head != nil && pr.Base != nil && pr.Head.Ref != "" && pr.Base.Ref != "" {
		fmt.Fprintf(&b, "\n%s → %s", code(clean(pr.Head.Ref, avoid)), code(clean(pr.Base.Ref, avoid)))
	}
	if pr.HTMLURL != "" {
		b.WriteString("\n" + clean(pr.HTMLURL, avoid))
	}
	return b.String()
}

func renderPullRequest(p *pullRequestEvent, role string) string {
	var b strings.Builder
	if role != "" {
		b.WriteString(role + " ")
	}
	fmt.Fprintf(&b, "Pull request %s:\n", clean(actionLabel(p), role))
	b.WriteString(prContext(p, role))
	return b.String()
}

// reviewerText is the mention token when resolved, the plain login otherwise.
func reviewerText(login, token string) string {
	if token != "" {
		return token
	}
	return code(clean(login))
}

func renderReview(p *pullRequestEvent, reviewer, token string) string {
	requester := "Someone"
	if p.Sender != nil && p.Sender.Login != "" {
		requester = code(clean(p.Sender.Login, token))
	}
	return fmt.Sprintf("%s requested a review from %s:\n%s", requester, reviewer, prContext(p, token))
}

func renderWorkflowRun(p *workflowRunEvent) string {
	run := p.WorkflowRun
	status := run.Status
	if status == "" {
		status = "unknown"
	}
	conclusion := "unknown"
	if run.Conclusion != nil && *run.Conclusion != "" {
		conclusion = *run.Conclusion
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow run **%s**", clean(run.Name))
	if run.RunNumber > 0 {
		fmt.Fprintf(&b, " #%d", run.RunNumber)
	}
	fmt.Fprintf(&b, " in **%s**", clean(p.Repository.FullName))
	if run.HeadBranch != "" {
		fmt.Fprintf(&b, " on %s", code(clean(run.HeadBranch)))
	}
	fmt.Fprintf(&b, " %s with status %s and result %s",
		clean(p.Action), code(clean(status)), code(clean(conclusion)))
	if run.HTMLURL != "" {
		b.WriteString("\n" + clean(run.HTMLURL))
	}
	return b.String()
}
