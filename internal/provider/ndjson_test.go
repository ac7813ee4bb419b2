package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineDecoder_Feed(t *testing.T) {
	var d LineDecoder

	// No newline yet: nothing is complete.
	require.Empty(t, d.Feed(`{"id":"a1","name":"thi`))

	// The newline completes the line split across deltas.
	got := d.Feed("nk\",\"params\":{\"text\":\"hm\"}}\n")
	require.Len(t, got, 1)
	require.Equal(t, "a1", got[0].ID)
	require.Equal(t, "think", got[0].Name)
}

func TestLineDecoder_MultipleLinesInOneDelta(t *testing.T) {
	var d LineDecoder
	got := d.Feed("{\"id\":\"a1\",\"name\":\"think\"}\n{\"id\":\"a2\",\"name\":\"todo\"}\n")
	require.Len(t, got, 2)
	require.Equal(t, "a2", got[1].ID)
}

func TestLineDecoder_SkipsNonJSONLines(t *testing.T) {
	var d LineDecoder
	got := d.Feed("Here are the actions:\n{\"id\":\"a1\",\"name\":\"think\"}\nnot json at all\n{broken\n")
	require.Len(t, got, 1)
}

func TestLineDecoder_Flush(t *testing.T) {
	var d LineDecoder
	require.Empty(t, d.Feed(`{"id":"a1","name":"think"}`))

	got := d.Flush()
	require.Len(t, got, 1)
	require.Equal(t, "a1", got[0].ID)

	// Flush drains the buffer.
	require.Empty(t, d.Flush())
}

func TestNDJSONProvider_Stream(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"c1","name":"create_shape","params":{"id":"n1","type":"note","x":0,"y":0}}`,
		`not an action`,
		`{"id":"c2","name":"create_shape","params":{"id":"n2","type":"note","x":10,"y":0}}`,
	}, "\n")

	p := &NDJSONProvider{R: strings.NewReader(input)}
	events, errs := p.Stream(context.Background(), nil)

	var batches [][]string
	var sawFinal bool
	for ev := range events {
		if ev.Final {
			sawFinal = true
			require.Empty(t, ev.Actions, "the closing event carries no repeated actions")
			continue
		}
		var ids []string
		for _, a := range ev.Actions {
			ids = append(ids, a.ID)
		}
		batches = append(batches, ids)
	}
	require.NoError(t, <-errs)

	require.True(t, sawFinal)
	require.Equal(t, [][]string{{"c1"}, {"c2"}}, batches)
}

func TestClassify(t *testing.T) {
	require.Equal(t, ClassPromptTooLong, Classify(ErrPromptTooLong))
	require.Equal(t, ClassPromptTooLong, Classify(errorString("400: prompt is too long for this model")))
	require.Equal(t, ClassRetryable, Classify(errorString("429 rate limit exceeded")))
	require.Equal(t, ClassRetryable, Classify(errorString("upstream connect timeout")))
	require.Equal(t, ClassFatal, Classify(errorString("invalid api key")))
}

type errorString string

func (e errorString) Error() string { return string(e) }
