package poller

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/willwe-dev/activity"
)

// FetchFunc loads the current activity list of one subject.
type FetchFunc func(ctx context.Context) ([]activity.Record, error)

// Registry tracks in-flight fetches by subject key so that pollers of the
// same subject share one request. Create one per process and hand it to
// every poller.
type Registry struct {
	group singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Do runs fetch for key, or joins the fetch already running for it. The
// fetch is detached from ctx: a caller that gives up stops waiting, but the
// request completes for the others. shared reports whether the result was
// delivered to more than one caller.
func (r *Registry) Do(ctx context.Context, key string, fetch FetchFunc) (recs []activity.Record, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return fetch(detached)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		recs, _ := res.Val.([]activity.Record)
		return recs, res.Shared, nil
	}
}

// Release drops the key's in-flight entry. Later calls start a new fetch.
func (r *Registry) Release(key string) {
	r.group.Forget(key)
}
