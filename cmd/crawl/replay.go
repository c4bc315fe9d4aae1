package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/willwe-dev/activity/internal/ingest"
)

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Apply indexer events from a JSON lines file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			events, skipped, err := readEvents(in)
			if err != nil {
				return err
			}
			for _, line := range skipped {
				e.log.Warn().Int("line", line).Msg("skipping undecodable event")
			}

			d := ingest.NewDispatcher(e.store, e.log, e.metrics)
			applied := d.HandleAll(cmd.Context(), events)
			e.log.Info().Int("events", len(events)).Int("applied", applied).Int("skipped", len(skipped)).Msg("replay complete")
			return nil
		},
	}
}

// readEvents decodes one event per line. Blank lines are ignored; the line
// numbers of undecodable ones are returned in skipped.
func readEvents(r io.Reader) (events []ingest.Event, skipped []int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := ingest.DecodeEvent(line)
		if err != nil {
			skipped = append(skipped, n)
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read events: %w", err)
	}
	return events, skipped, nil
}
