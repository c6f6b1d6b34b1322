package ui

import (
	"fmt"
	"strings"
	"time"

	"igsync/pkg/ingest"
	"igsync/pkg/instagram"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// Bar renders done/total as a fixed-width bar
func Bar(done, total, width int) string {
	if total <= 0 || width <= 0 {
		return "[" + strings.Repeat(ProgressEmpty, width) + "]"
	}
	if done > total {
		done = total
	}
	filled := done * width / total
	return "[" + strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled) + "]"
}

// PrintCycleReport prints a one-screen summary of a finished cycle
func PrintCycleReport(r *ingest.CycleReport) {
	if r == nil {
		return
	}
	PrintHighlight("[SYNC CYCLE " + r.CycleID + "]")
	if r.Resumed {
		PrintInfo("Resumed", "yes")
	}
	processed := r.Succeeded + r.Failed
	PrintInfo("Accounts", fmt.Sprintf("%s %d/%d", Bar(processed+r.Skipped, r.Listed, 20), processed+r.Skipped, r.Listed))
	PrintInfo("Succeeded", fmt.Sprintf("%d", r.Succeeded))
	PrintInfo("Failed", fmt.Sprintf("%d", r.Failed))
	if r.Skipped > 0 {
		PrintInfo("Skipped", fmt.Sprintf("%d", r.Skipped))
	}
	if !r.FinishedAt.IsZero() {
		PrintInfo("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	}

	for _, o := range r.Outcomes {
		if o.Status != ingest.OutcomeFailed {
			continue
		}
		detail := o.ErrorKind
		if o.HTTPStatus != 0 {
			detail = fmt.Sprintf("%s %d", detail, o.HTTPStatus)
		}
		PrintWarning("  @"+o.Username+" ("+detail+")", o.Error)
	}

	if r.Error != "" {
		PrintError("Cycle aborted", r.Error)
	}
}

// PrintAccountResult prints what a single-account sync produced
func PrintAccountResult(res *ingest.AccountResult) {
	if res == nil {
		return
	}
	o := res.Outcome
	PrintHighlight("[@" + o.Username + "] " + strings.ToUpper(o.Status))
	if p := res.Profile; p != nil {
		PrintInfo("Full name", p.FullName)
		PrintInfo("Followers", fmt.Sprintf("%d", p.FollowerCount))
		PrintInfo("Following", fmt.Sprintf("%d", p.FollowingCount))
		PrintInfo("Media", fmt.Sprintf("%d", p.MediaCount))
		PrintInfo("Profile", instagram.GetUserProfileURL(p.Username))
	}
	if len(res.Posts) > 0 {
		PrintInfo("Posts fetched", fmt.Sprintf("%d", o.PostsFetched))
		if o.Status != ingest.OutcomeDryRun {
			PrintInfo("Posts created", fmt.Sprintf("%d", o.PostsCreated))
		}
		for _, post := range res.Posts {
			Println(Dim(fmt.Sprintf("  %s  %-5s  ♥ %d  ▶ %d  %s",
				post.TakenAt.Format("2006-01-02"), post.MediaType, post.LikeCount, post.PlayCount,
				instagram.GetPostURL(post.Code))))
		}
	}
	if o.Error != "" {
		PrintError("Error", o.Error)
	}
}
