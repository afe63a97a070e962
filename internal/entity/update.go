package entity

// MaxStatusCommits caps UpdateStatus.Commits.
const MaxStatusCommits = 30

const (
	StepNoUpdates       = "no updates"
	StepRestartDeferred = "restart deferred"
)

type UpdateStatus struct {
	Branch           string       `json:"branch"`
	Current          *CommitRef   `json:"current"`
	Remote           *CommitRef   `json:"remote"`
	HasUpdates       bool         `json:"has_updates"`
	Commits          []*CommitRef `json:"commits"`
	Release          *Release     `json:"release,omitempty"`
	ChangelogExcerpt string       `json:"changelog_excerpt,omitempty"`
	Errors           []string     `json:"errors"`
}

type UpdateRunResult struct {
	OK               bool       `json:"ok"`
	Branch           string     `json:"branch"`
	Before           *CommitRef `json:"before"`
	After            *CommitRef `json:"after"`
	Remote           *CommitRef `json:"remote"`
	ChangedFiles     []string   `json:"changed_files"`
	Steps            []string   `json:"steps"`
	RestartRequired  bool       `json:"restart_required"`
	RestartPerformed bool       `json:"restart_performed"`
	Error            string     `json:"error,omitempty"`
}

type RollbackResult struct {
	OK               bool       `json:"ok"`
	Branch           string     `json:"branch"`
	Target           string     `json:"target"`
	Before           *CommitRef `json:"before"`
	After            *CommitRef `json:"after"`
	ChangedFiles     []string   `json:"changed_files"`
	Steps            []string   `json:"steps"`
	RestartRequired  bool       `json:"restart_required"`
	RestartPerformed bool       `json:"restart_performed"`
	Snapshot         string     `json:"snapshot,omitempty"`
	Error            string     `json:"error,omitempty"`
}
