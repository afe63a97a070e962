package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/yz4230/selfupdate/internal/entity"
)

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func commitLine(c *entity.CommitRef) string {
	if c == nil {
		return mutedStyle.Render("unknown")
	}
	return hashStyle.Render(c.ShortHash) + " " + c.Subject + mutedStyle.Render(" ("+c.Author+", "+c.CommitDate+")")
}

func field(w io.Writer, label, value string) {
	fmt.Fprintln(w, labelStyle.Render(label)+value)
}

func list(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, labelStyle.Render(label))
	for _, item := range items {
		fmt.Fprintln(w, "  - "+item)
	}
}

func renderStatus(w io.Writer, s *entity.UpdateStatus) {
	fmt.Fprintln(w, titleStyle.Render("Update status"))
	field(w, "branch", s.Branch)
	field(w, "current", commitLine(s.Current))
	field(w, "remote", commitLine(s.Remote))
	if s.HasUpdates {
		field(w, "updates", warningStyle.Render(strconv.Itoa(len(s.Commits))+" new commit(s)"))
		for _, c := range s.Commits {
			fmt.Fprintln(w, "  "+commitLine(c))
		}
	} else {
		field(w, "updates", successStyle.Render("up to date"))
	}
	if s.Release != nil {
		field(w, "release", lipgloss.JoinHorizontal(lipgloss.Top, s.Release.Tag, mutedStyle.Render(" "+s.Release.PublishedAt)))
		if s.Release.Body != "" {
			fmt.Fprintln(w, mutedStyle.Render(indent(s.Release.Body)))
		}
	} else if s.ChangelogExcerpt != "" {
		fmt.Fprintln(w, labelStyle.Render("changelog"))
		fmt.Fprintln(w, mutedStyle.Render(indent(s.ChangelogExcerpt)))
	}
	for _, e := range s.Errors {
		fmt.Fprintln(w, errorStyle.Render("! ")+e)
	}
}

func renderOutcome(w io.Writer, title string, ok bool, errText string) {
	if ok {
		fmt.Fprintln(w, titleStyle.Render(title)+" "+successStyle.Render("succeeded"))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(title)+" "+errorStyle.Render("failed"))
	if errText != "" {
		field(w, "error", errorStyle.Render(errText))
	}
}

func renderRestart(w io.Writer, required, performed bool) {
	switch {
	case performed:
		field(w, "restart", successStyle.Render("performed"))
	case required:
		field(w, "restart", warningStyle.Render("pending"))
	}
}

func renderUpdate(w io.Writer, r *entity.UpdateRunResult) {
	renderOutcome(w, "Update", r.OK, r.Error)
	field(w, "branch", r.Branch)
	field(w, "before", commitLine(r.Before))
	field(w, "after", commitLine(r.After))
	list(w, "changed", r.ChangedFiles)
	list(w, "steps", r.Steps)
	renderRestart(w, r.RestartRequired, r.RestartPerformed)
}

func renderRollback(w io.Writer, r *entity.RollbackResult) {
	renderOutcome(w, "Rollback", r.OK, r.Error)
	if r.Target != "" {
		field(w, "target", hashStyle.Render(r.Target))
	}
	field(w, "before", commitLine(r.Before))
	field(w, "after", commitLine(r.After))
	if r.Snapshot != "" {
		field(w, "snapshot", r.Snapshot)
	}
	list(w, "steps", r.Steps)
	renderRestart(w, r.RestartRequired, r.RestartPerformed)
}

func renderDeployments(w io.Writer, deps []*entity.Deployment) {
	if len(deps) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no deployments recorded"))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "KIND", "STATUS", "BEFORE", "AFTER", "WHEN", "")
	for _, d := range deps {
		active := ""
		if d.IsActive {
			active = "active"
		}
		t.Row(
			strconv.FormatUint(uint64(d.ID), 10),
			string(d.Kind),
			string(d.Status),
			shortHash(d.BeforeSHA),
			shortHash(d.AfterSHA),
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			active,
		)
	}
	fmt.Fprintln(w, t.Render())
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
