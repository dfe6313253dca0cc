// Package metrics holds the Prometheus collectors exported by roomchatd.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	messagesQueued      prometheus.Counter
	messagesDelivered   *prometheus.CounterVec
	messagesDuplicate   prometheus.Counter
	channelTransitions  *prometheus.CounterVec
	historySyncDuration prometheus.Histogram
)

// Register initialises the collectors on the default registry. Safe to call
// repeatedly.
func Register() {
	registerOnce.Do(func() {
		messagesQueued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_messages_queued_total",
			Help: "Outbound messages persisted as queued before any send attempt.",
		})

		messagesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_messages_delivered_total",
			Help: "Messages stored as delivered, by how the server record arrived.",
		}, []string{"source"})

		messagesDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_messages_duplicate_total",
			Help: "Inbound or history messages skipped because the id was already stored.",
		})

		channelTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_channel_transitions_total",
			Help: "Realtime channel state transitions by target state.",
		}, []string{"to"})

		historySyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomchat_history_sync_seconds",
			Help:    "Duration of history fetch and merge per chat open.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		})

		prometheus.MustRegister(messagesQueued, messagesDelivered, messagesDuplicate, channelTransitions, historySyncDuration)
	})
}

// Delivery sources.
const (
	SourceEcho    = "echo"
	SourcePush    = "push"
	SourceHistory = "history"
)

// MessagesQueued exposes the queued counter.
func MessagesQueued() prometheus.Counter {
	Register()
	return messagesQueued
}

// MessagesDelivered exposes the delivered counter.
func MessagesDelivered() *prometheus.CounterVec {
	Register()
	return messagesDelivered
}

// MessagesDuplicate exposes the duplicate counter.
func MessagesDuplicate() prometheus.Counter {
	Register()
	return messagesDuplicate
}

// ChannelTransitions exposes the transition counter.
func ChannelTransitions() *prometheus.CounterVec {
	Register()
	return channelTransitions
}

// HistorySyncDuration exposes the sync latency histogram.
func HistorySyncDuration() prometheus.Histogram {
	Register()
	return historySyncDuration
}
