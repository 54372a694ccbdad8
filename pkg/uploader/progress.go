package uploader

import (
	"time"
)

// ProgressEvent one progress report for a queued file.
type ProgressEvent struct {
	Name       string
	State      State
	BytesSent  int64
	TotalBytes int64
	Percent    float64
	// Speed bytes per second since the upload started, 0 until measurable
	Speed float64
	// Remaining estimated time left, nil while the speed is zero
	Remaining *time.Duration
	// Message user facing error text on failed items
	Message string
}

// ProgressSink receives throttled progress reports.
type ProgressSink interface {
	OnProgress(ev ProgressEvent)
}

// NopSink a sink that drops every event.
type NopSink struct{}

// OnProgress no-op
func (NopSink) OnProgress(ProgressEvent) {}

// reporter throttles progress events so the UI layer is not flooded.
// State changes and the final report always go through.
type reporter struct {
	sink        ProgressSink
	minInterval time.Duration
	startedAt   time.Time
	lastReport  time.Time
	now         func() time.Time
}

func newReporter(sink ProgressSink, minInterval time.Duration) *reporter {
	if sink == nil {
		sink = NopSink{}
	}
	return &reporter{sink: sink, minInterval: minInterval, now: time.Now}
}

func (r *reporter) start() {
	r.startedAt = r.now()
}

func (r *reporter) report(item *Item, force bool) {
	now := r.now()
	if !force && now.Sub(r.lastReport) < r.minInterval {
		return
	}
	r.lastReport = now

	bytesSent, total := item.progress()
	ev := ProgressEvent{
		Name:       item.Info.Name,
		State:      item.State(),
		BytesSent:  bytesSent,
		TotalBytes: total,
	}
	if total > 0 {
		ev.Percent = float64(bytesSent) / float64(total) * 100
	}
	elapsed := now.Sub(r.startedAt)
	if elapsed > 0 && bytesSent > 0 {
		ev.Speed = float64(bytesSent) / elapsed.Seconds()
	}
	if ev.Speed > 0 {
		remaining := time.Duration(float64(total-bytesSent) / ev.Speed * float64(time.Second))
		ev.Remaining = &remaining
	}
	if err := item.Err(); err != nil {
		ev.Message = err.Error()
	}
	r.sink.OnProgress(ev)
}
