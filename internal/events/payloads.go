package events

// GitHub webhook payload subsets. Nested objects are pointers so a missing
// object is distinguishable from an empty one; only the fields the relay
// renders are decoded.

type ghUser struct {
	Login string `json:"login"`
}

type ghTeam struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type ghRepository struct {
	FullName string `json:"full_name"`
}

type ghBranchRef struct {
	Ref string `json:"ref"`
}

type ghPullRequest struct {
	Number  int          `json:"number"`
	Title   string       `json:"title"`
	HTMLURL string       `json:"html_url"`
	User    *ghUser      `json:"user"`
	Head    *ghBranchRef `json:"head"`
	Base    *ghBranchRef `json:"base"`
	Merged  bool         `json:"merged"`
	Draft   bool         `json:"draft"`
}

type pullRequestEvent struct {
	Action            string         `json:"action"`
	Number            int            `json:"number"`
	PullRequest       *ghPullRequest `json:"pull_request"`
	Repository        *ghRepository  `json:"repository"`
	Sender            *ghUser        `json:"sender"`
	RequestedReviewer *ghUser        `json:"requested_reviewer"`
	RequestedTeam     *ghTeam        `json:"requested_team"`
}

type ghWorkflowRun struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Conclusion *string `json:"conclusion"`
	HTMLURL    string  `json:"html_url"`
	HeadBranch string  `json:"head_branch"`
	RunNumber  int     `json:"run_number"`
}

type workflowRunEvent struct {
	Action      string         `json:"action"`
	WorkflowRun *ghWorkflowRun `json:"workflow_run"`
	Repository  *ghRepository  `json:"repository"`
}
