package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-github/v77/github"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/store"
)

func newGitHubClient(t *testing.T, h http.Handler) *github.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := github.NewClient(srv.Client())
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = u
	return client
}

func TestCollectGitHub(t *testing.T) {
	var pages []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/willwe-dev/protocol/commits", func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/willwe-dev/protocol/commits?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `[{"sha":"aaa111","html_url":"https://github.com/willwe-dev/protocol/commit/aaa111",
				"author":{"login":"alice"},
				"commit":{"message":"add membranes","committer":{"date":"2024-05-01T10:00:00Z"}}}]`)
			return
		}
		fmt.Fprint(w, `[{"sha":"bbb222","commit":{"message":"fix","author":{"name":"Bob"},"committer":{"date":"2024-04-30T08:30:00Z"}}}]`)
	})

	acts, err := collectGitHub(context.Background(), newGitHubClient(t, mux), "willwe-dev", "protocol",
		time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, []string{"", "2"}, pages)

	assert.Equal(t, "github-aaa111", acts[0].ID)
	assert.Equal(t, commitEventType, acts[0].EventType)
	assert.Nil(t, acts[0].NodeID)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", acts[0].Timestamp)
	assert.JSONEq(t, `{"sha":"aaa111","author":"alice","message":"add membranes","url":"https://github.com/willwe-dev/protocol/commit/aaa111"}`, string(acts[0].Data))

	assert.JSONEq(t, `{"sha":"bbb222","author":"Bob","message":"fix","url":""}`, string(acts[1].Data))
}

func TestCollectGitHub_Error(t *testing.T) {
	client := newGitHubClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	_, err := collectGitHub(context.Background(), client, "willwe-dev", "missing", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}

func TestStoreCommits_Idempotent(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "crawl.db"), zerolog.Nop())
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	commits := func() []activity.Activity {
		return []activity.Activity{
			{ID: "github-aaa111", EventType: commitEventType, Data: []byte(`{"sha":"aaa111"}`), Timestamp: "2024-05-01T10:00:00.000Z"},
			{ID: "github-bbb222", EventType: commitEventType, Data: []byte(`{"sha":"bbb222"}`), Timestamp: "2024-04-30T08:30:00.000Z"},
		}
	}

	n, err := storeCommits(context.Background(), st, commits())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = storeCommits(context.Background(), st, commits())
	require.NoError(t, err)
	assert.Zero(t, n)

	a, err := st.Activity(context.Background(), "github-aaa111")
	require.NoError(t, err)
	assert.Nil(t, a.NodeID)
	assert.Nil(t, a.UserAddress)
}
