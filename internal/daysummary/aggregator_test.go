package daysummary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/visnote/internal/note"
)

type staticSource note.Sequence

func (s staticSource) Snapshot() note.Sequence { return note.Sequence(s).Clone() }

// gatedSummarizer blocks each call whose prompt contains a gated word until
// that gate is released.
type gatedSummarizer struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls atomic.Int32
	err   error
}

func (g *gatedSummarizer) gate(word string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = map[string]chan struct{}{}
	}
	ch := make(chan struct{})
	g.gates[word] = ch
	return ch
}

func (g *gatedSummarizer) Describe(context.Context, note.Image, string) (string, error) {
	return "", errors.New("not used")
}

func (g *gatedSummarizer) Summarize(_ context.Context, text, _ string) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	var wait chan struct{}
	for word, ch := range g.gates {
		if strings.Contains(text, word) {
			wait = ch
		}
	}
	g.mu.Unlock()
	if wait != nil {
		<-wait
	}
	if g.err != nil {
		return "", g.err
	}
	return "summary of " + text, nil
}

var (
	day1 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
)

func notesFixture() staticSource {
	return staticSource{
		note.New("img", "evening walk", day2.Add(19*time.Hour)),
		note.New("img", "morning coffee", day1.Add(8*time.Hour)),
		note.New("img", "lunch salad", day1.Add(12*time.Hour)),
	}
}

func TestSelect_Summarizes(t *testing.T) {
	svc := &gatedSummarizer{}
	a := New(notesFixture(), svc, time.UTC)

	gen := a.Select(context.Background(), day1)
	a.Wait()

	v := a.View()
	assert.Equal(t, gen, v.Generation)
	assert.Equal(t, "2026-05-01", v.Day)
	assert.Equal(t, StatusReady, v.Status)
	assert.Equal(t, 2, v.NoteCount)
	assert.Contains(t, v.Summary, "- morning coffee")
	assert.Contains(t, v.Summary, "- lunch salad")
	assert.NotContains(t, v.Summary, "evening walk")
	assert.Equal(t, int32(1), svc.calls.Load())
}

func TestSelect_StaleResultDiscarded(t *testing.T) {
	svc := &gatedSummarizer{}
	releaseD1 := svc.gate("coffee")
	a := New(notesFixture(), svc, time.UTC)

	a.Select(context.Background(), day1)
	assert.Equal(t, StatusLoading, a.View().Status)

	gen2 := a.Select(context.Background(), day2)
	require.Eventually(t, func() bool { return a.View().Status == StatusReady }, 5*time.Second, 5*time.Millisecond)

	close(releaseD1)
	a.Wait()

	v := a.View()
	assert.Equal(t, gen2, v.Generation)
	assert.Equal(t, "2026-05-02", v.Day)
	assert.Contains(t, v.Summary, "evening walk")
	assert.NotContains(t, v.Summary, "coffee")
}

func TestSelect_EmptyDayClearsWithoutRequest(t *testing.T) {
	svc := &gatedSummarizer{}
	a := New(notesFixture(), svc, time.UTC)

	a.Select(context.Background(), day1)
	a.Wait()
	require.Equal(t, StatusReady, a.View().Status)

	a.Select(context.Background(), day1.AddDate(0, 0, 10))
	v := a.View()
	assert.Equal(t, StatusEmpty, v.Status)
	assert.Empty(t, v.Summary)
	assert.Equal(t, int32(1), svc.calls.Load())
}

func TestSelect_EmptyDayBeatsSlowRequest(t *testing.T) {
	svc := &gatedSummarizer{}
	release := svc.gate("coffee")
	a := New(notesFixture(), svc, time.UTC)

	a.Select(context.Background(), day1)
	a.Select(context.Background(), day1.AddDate(0, 0, 10))
	close(release)
	a.Wait()

	assert.Equal(t, StatusEmpty, a.View().Status)
}

func TestSelect_Failure(t *testing.T) {
	svc := &gatedSummarizer{err: errors.New("model offline")}
	a := New(notesFixture(), svc, time.UTC)

	a.Select(context.Background(), day1)
	a.Wait()

	v := a.View()
	assert.Equal(t, StatusFailed, v.Status)
	assert.Contains(t, v.Error, "model offline")
}

func TestSelect_RequestOutlivesCallerContext(t *testing.T) {
	svc := &gatedSummarizer{}
	a := New(notesFixture(), svc, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	a.Select(ctx, day1)
	cancel()
	a.Wait()

	assert.Equal(t, StatusReady, a.View().Status)
}

func TestSelect_MatchesLocalDay(t *testing.T) {
	zone := time.FixedZone("UTC+10", 10*3600)
	// 2026-05-01 20:00 UTC is 2026-05-02 06:00 in UTC+10.
	src := staticSource{note.New("img", "sunrise", time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC))}
	a := New(src, &gatedSummarizer{}, zone)

	d, err := a.ParseDay("2026-05-02")
	require.NoError(t, err)
	a.Select(context.Background(), d)
	a.Wait()
	assert.Equal(t, StatusReady, a.View().Status)

	d, _ = a.ParseDay("2026-05-01")
	a.Select(context.Background(), d)
	assert.Equal(t, StatusEmpty, a.View().Status)
}

func TestPrompt(t *testing.T) {
	got := Prompt(note.Sequence{
		note.New("img", "one", day1),
		note.New("img", "two", day1),
	})
	assert.Equal(t, "Notes:\n- one\n- two", got)
}

func TestView_InitiallyNone(t *testing.T) {
	a := New(staticSource{}, &gatedSummarizer{}, nil)
	assert.Equal(t, StatusNone, a.View().Status)
	assert.Equal(t, time.Local, a.Location())
}
