package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/poller"
)

// renderer prints poller updates as a growing log, oldest first.
type renderer struct {
	mu     sync.Mutex
	w      io.Writer
	loaded bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) Render(s poller.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch s.State {
	case poller.Failed:
		if s.Exhausted {
			fmt.Fprintf(r.w, "! %v; gave up after %d attempts, press Enter to retry\n", s.Err, s.Retries)
			return
		}
		fmt.Fprintf(r.w, "! %v; retry %d scheduled\n", s.Err, s.Retries)
	case poller.Success:
		fresh := s.Items
		if r.loaded {
			fresh = s.Items[:min(s.NewItems, len(s.Items))]
		}
		r.loaded = true
		for i := len(fresh) - 1; i >= 0; i-- {
			r.line(fresh[i])
		}
	}
}

func (r *renderer) line(rec activity.Record) {
	who := ""
	switch {
	case rec.NodeID != nil:
		who = "node " + *rec.NodeID
	case rec.UserAddress != nil:
		who = *rec.UserAddress
	}
	fmt.Fprintf(r.w, "%s  %-22s %-14s %s\n", rec.Timestamp, rec.EventType, who, rec.ID)
}
