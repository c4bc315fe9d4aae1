package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/go-github/v77/github"
	"github.com/spf13/cobra"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/store"
)

const commitEventType = "ProtocolCommit"

func newGitHubCmd() *cobra.Command {
	var (
		since  time.Duration
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "github",
		Short: "Record commits of the protocol repository as activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			gh := e.cfg.GitHub
			if gh.Repo == "" {
				return errors.New("WILLWE_GITHUB_REPO is required")
			}
			client := github.NewClient(nil)
			if gh.Token != "" {
				client = client.WithAuthToken(gh.Token)
			}

			until := time.Now()
			acts, err := collectGitHub(cmd.Context(), client, gh.Owner, gh.Repo, until.Add(-since), until)
			if err != nil {
				return err
			}

			if dryRun {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(acts)
			}

			n, err := storeCommits(cmd.Context(), e.store, acts)
			if err != nil {
				return err
			}
			e.log.Info().Str("repo", gh.Owner+"/"+gh.Repo).Int("commits", len(acts)).Int("written", n).Msg("github crawl complete")
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 48*time.Hour, "how far back to list commits")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the activities instead of storing them")
	return cmd
}

type commitData struct {
	SHA     string `json:"sha"`
	Author  string `json:"author"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

func collectGitHub(ctx context.Context, client *github.Client, owner, repo string, since, until time.Time) ([]activity.Activity, error) {
	opts := &github.CommitsListOptions{
		Since:       since,
		Until:       until,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var acts []activity.Activity
	for {
		commits, res, err := client.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list commits of %s/%s: %w", owner, repo, err)
		}
		for _, c := range commits {
			a, err := commitActivity(c)
			if err != nil {
				return nil, err
			}
			acts = append(acts, a)
		}
		if res.NextPage == 0 {
			return acts, nil
		}
		opts.Page = res.NextPage
	}
}

func commitActivity(c *github.RepositoryCommit) (activity.Activity, error) {
	author := c.GetAuthor().GetLogin()
	if author == "" {
		author = c.GetCommit().GetAuthor().GetName()
	}
	data, err := json.Marshal(commitData{
		SHA:     c.GetSHA(),
		Author:  author,
		Message: c.GetCommit().GetMessage(),
		URL:     c.GetHTMLURL(),
	})
	if err != nil {
		return activity.Activity{}, err
	}

	a := activity.Activity{
		ID:        "github-" + c.GetSHA(),
		EventType: commitEventType,
		Data:      data,
	}
	if t := c.GetCommit().GetCommitter().GetDate(); !t.IsZero() {
		a.Timestamp = activity.FormatTimestamp(t.Time)
	}
	return a, nil
}

// storeCommits writes the commit activities and returns how many were new.
func storeCommits(ctx context.Context, st *store.Store, acts []activity.Activity) (int, error) {
	var written int
	for i := range acts {
		inserted, err := st.WriteActivity(ctx, &acts[i])
		if err != nil {
			return written, fmt.Errorf("store commit %s: %w", acts[i].ID, err)
		}
		if inserted {
			written++
		}
	}
	return written, nil
}
