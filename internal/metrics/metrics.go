// Package metrics exposes a session's activity as Prometheus metrics over
// an optional HTTP endpoint.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/shmchat/internal/event"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// Namespace prefixes every metric name.
const Namespace = "shmchat"

// StatsFunc reports the attached segment's usage. It returns an error when
// no segment is attached.
type StatsFunc func() (shm.Stats, error)

// Metrics holds the collectors for one process.
type Metrics struct {
	MessagesPublished *prometheus.CounterVec
	MessagesRendered  *prometheus.CounterVec
	MessagesDropped   prometheus.Counter
	ReaderWakeups     prometheus.Counter
	Participants      prometheus.Gauge
	LastSeq           prometheus.Gauge
	ChatsClosed       prometheus.Counter

	lastSeq atomic.Uint64
	subs    []string
	bus     *event.Bus
}

// New registers the collectors with reg. A nil stats func omits the
// segment gauges.
func New(reg prometheus.Registerer, stats StatsFunc) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		MessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "messages_published_total",
				Help:      "Records appended to the chat log by this process",
			},
			[]string{"kind"},
		),
		MessagesRendered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "messages_rendered_total",
				Help:      "Records rendered by this process's reader",
			},
			[]string{"kind"},
		),
		MessagesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "messages_dropped_total",
				Help:      "Records overwritten before the reader rendered them",
			},
		),
		ReaderWakeups: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reader_wakeups_total",
				Help:      "Times the reader returned from waiting on the condition",
			},
		),
		Participants: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "participants",
				Help:      "Participants attached, as of this process's last attach or detach",
			},
		),
		LastSeq: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "last_seq",
				Help:      "Sequence number of the last record seen by this process",
			},
		),
		ChatsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "chats_closed_total",
				Help:      "Segments torn down by this process as the last participant",
			},
		),
	}

	if stats != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "segment_bytes_used",
				Help:      "Bytes allocated in the attached segment",
			},
			func() float64 {
				st, err := stats()
				if err != nil {
					return 0
				}
				return float64(st.Used)
			},
		)
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "segment_bytes_total",
				Help:      "Size of the attached segment",
			},
			func() float64 {
				st, err := stats()
				if err != nil {
					return 0
				}
				return float64(st.Size)
			},
		)
	}
	return m
}

// Observe updates the collectors from session events on bus until Close.
func (m *Metrics) Observe(bus *event.Bus) {
	m.bus = bus
	m.subs = append(m.subs, bus.SubscribeAll(m.handle))
}

// Close stops observing.
func (m *Metrics) Close() {
	if m.bus == nil {
		return
	}
	for _, id := range m.subs {
		m.bus.Unsubscribe(id)
	}
	m.subs = nil
}

func (m *Metrics) handle(e event.Event) {
	switch ev := e.(type) {
	case event.ParticipantAttachedEvent:
		m.Participants.Set(float64(ev.Participants))
	case event.ParticipantDetachedEvent:
		m.Participants.Set(float64(ev.Participants))
	case event.MessagePublishedEvent:
		m.MessagesPublished.WithLabelValues(ev.Kind).Inc()
		m.observeSeq(ev.Seq)
	case event.MessageRenderedEvent:
		m.MessagesRendered.WithLabelValues(ev.Kind).Inc()
		m.observeSeq(ev.Seq)
	case event.MessagesDroppedEvent:
		m.MessagesDropped.Add(float64(ev.Count))
	case event.ReaderWokeEvent:
		m.ReaderWakeups.Inc()
	case event.ChatClosedEvent:
		m.ChatsClosed.Inc()
		m.Participants.Set(0)
	}
}

func (m *Metrics) observeSeq(seq uint64) {
	// Published and rendered events arrive from different goroutines.
	for {
		cur := m.lastSeq.Load()
		if seq <= cur {
			return
		}
		if m.lastSeq.CompareAndSwap(cur, seq) {
			m.LastSeq.Set(float64(seq))
			return
		}
	}
}
