package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
)

// LineDecoder incrementally splits streamed model text into complete
// line-delimited JSON actions. Text deltas are fed in as they arrive; only
// fully terminated lines are parsed. Lines that do not parse are skipped —
// a half-written line in a streaming response is a fragment, not an error.
type LineDecoder struct {
	buf strings.Builder
}

// Feed appends a text delta and returns the actions of every line completed
// by it.
func (d *LineDecoder) Feed(text string) []action.RawAction {
	d.buf.WriteString(text)
	s := d.buf.String()
	idx := strings.LastIndexByte(s, '\n')
	if idx < 0 {
		return nil
	}
	complete := s[:idx]
	d.buf.Reset()
	d.buf.WriteString(s[idx+1:])
	return parseLines(complete)
}

// Flush parses whatever remains in the buffer as a last line.
func (d *LineDecoder) Flush() []action.RawAction {
	rest := d.buf.String()
	d.buf.Reset()
	return parseLines(rest)
}

func parseLines(s string) []action.RawAction {
	var out []action.RawAction
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var raw action.RawAction
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// NDJSONProvider reads a pre-recorded line-delimited JSON action stream from
// a reader. It is the fallback provider for clients that bring their own
// model loop, and the workhorse of pipeline tests.
type NDJSONProvider struct {
	R io.Reader
}

func (p *NDJSONProvider) Name() string { return "ndjson" }

func (p *NDJSONProvider) Stream(ctx context.Context, parts *promptctx.Parts) (<-chan Event, <-chan error) {
	events := make(chan Event, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		scanner := bufio.NewScanner(p.R)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			batch := parseLines(scanner.Text())
			if len(batch) == 0 {
				continue
			}
			select {
			case events <- Event{Actions: batch}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- err
			return
		}
		events <- Event{Final: true}
	}()

	return events, errs
}
