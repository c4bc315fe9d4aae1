package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/poller"
)

func rec(id, ts string) activity.Record {
	node := "N1"
	return activity.Record{ID: id, NodeID: &node, EventType: "Mint", Timestamp: ts}
}

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Render(poller.Snapshot{State: poller.Success, Items: []activity.Record{
		rec("b", "2024-05-01T00:00:02.000Z"),
		rec("a", "2024-05-01T00:00:01.000Z"),
	}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.True(t, strings.HasPrefix(lines[0], "2024-05-01T00:00:01.000Z"))
		assert.Contains(t, lines[1], "node N1")
	}

	buf.Reset()
	r.Render(poller.Snapshot{State: poller.Success, NewItems: 1, Items: []activity.Record{
		rec("c", "2024-05-01T00:00:03.000Z"),
		rec("b", "2024-05-01T00:00:02.000Z"),
		rec("a", "2024-05-01T00:00:01.000Z"),
	}})
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), " c\n")

	buf.Reset()
	r.Render(poller.Snapshot{State: poller.Failed, Retries: 2, Err: errors.New("HTTP 502")})
	assert.Equal(t, "! HTTP 502; retry 2 scheduled\n", buf.String())

	buf.Reset()
	r.Render(poller.Snapshot{State: poller.Failed, Retries: 4, Exhausted: true, Err: errors.New("HTTP 502")})
	assert.Contains(t, buf.String(), "gave up after 4 attempts")
}

func TestRenderer_FirstItemsAfterEmptyFeed(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Render(poller.Snapshot{State: poller.Success})
	assert.Empty(t, buf.String())

	r.Render(poller.Snapshot{State: poller.Success, NewItems: 1, Items: []activity.Record{
		rec("a", "2024-05-01T00:00:01.000Z"),
	}})
	assert.Contains(t, buf.String(), " a\n")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestRenderer_WithPoller(t *testing.T) {
	feeds := [][]activity.Record{{}, {rec("a", "2024-05-01T00:00:01.000Z")}}
	var n int
	fetch := func(context.Context) ([]activity.Record, error) {
		f := feeds[n]
		n++
		return f, nil
	}

	var buf bytes.Buffer
	r := newRenderer(&buf)
	var tick func()
	sched := func(_ time.Duration, f func()) func() {
		tick = f
		return func() {}
	}
	p := poller.New("node:N1@84532", fetch, poller.NewRegistry(), poller.WithScheduler(sched), poller.OnUpdate(r.Render))
	p.Start()
	tick()
	tick()
	p.Stop()

	assert.Equal(t, 1, p.Snapshot().NewItems)
	assert.Contains(t, buf.String(), " a\n")
}
