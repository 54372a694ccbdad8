package uploader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink remembers every event it gets.
type captureSink struct {
	events []ProgressEvent
}

func (c *captureSink) OnProgress(ev ProgressEvent) {
	c.events = append(c.events, ev)
}

func TestReporterThrottles(t *testing.T) {
	sink := &captureSink{}
	rep := newReporter(sink, 250*time.Millisecond)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rep.now = func() time.Time { return now }
	rep.start()

	item := NewItem("/tmp/x", FileInfo{Name: "x.bin", Size: 100})
	item.setState(StateUploading)

	rep.report(item, false)
	require.Len(t, sink.events, 1)

	// too soon, dropped
	now = now.Add(100 * time.Millisecond)
	rep.report(item, false)
	assert.Len(t, sink.events, 1)

	// forced reports always go through
	rep.report(item, true)
	assert.Len(t, sink.events, 2)

	now = now.Add(300 * time.Millisecond)
	rep.report(item, false)
	assert.Len(t, sink.events, 3)
}

func TestReporterComputesSpeedAndRemaining(t *testing.T) {
	sink := &captureSink{}
	rep := newReporter(sink, 0)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rep.now = func() time.Time { return now }
	rep.start()

	item := NewItem("/tmp/x", FileInfo{Name: "x.bin", Size: 100})
	item.setState(StateUploading)

	// nothing sent yet, the estimate must stay empty instead of lying
	rep.report(item, true)
	require.Len(t, sink.events, 1)
	assert.Equal(t, float64(0), sink.events[0].Speed)
	assert.Nil(t, sink.events[0].Remaining)

	item.addBytes(50)
	now = now.Add(time.Second)
	rep.report(item, true)
	require.Len(t, sink.events, 2)
	ev := sink.events[1]
	assert.Equal(t, float64(50), ev.Percent)
	assert.InDelta(t, 50, ev.Speed, 0.01)
	require.NotNil(t, ev.Remaining)
	assert.InDelta(t, float64(time.Second), float64(*ev.Remaining), float64(50*time.Millisecond))
}

func TestReporterReportsFailureMessage(t *testing.T) {
	sink := &captureSink{}
	rep := newReporter(sink, 0)
	rep.start()

	item := NewItem("/tmp/x", FileInfo{Name: "x.bin", Size: 10})
	item.setErr(assert.AnError)
	item.setState(StateFailed)

	rep.report(item, true)
	require.Len(t, sink.events, 1)
	assert.Equal(t, StateFailed, sink.events[0].State)
	assert.Equal(t, assert.AnError.Error(), sink.events[0].Message)
}

func TestNilSinkIsSafe(t *testing.T) {
	rep := newReporter(nil, 0)
	rep.start()
	item := NewItem("/tmp/x", FileInfo{Name: "x.bin", Size: 10})
	rep.report(item, true)
}
