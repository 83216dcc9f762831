// Package stats registers the process-wide prometheus counters and gauges
// exposed while a capture worker runs: packets seen/dropped, events
// emitted per kind, and flows tracked/dropped by the TCP tracker.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PacketsReceived counts every frame handed to the parser.
	PacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmon_packets_received_total",
		Help: "Frames received from the capture source.",
	})

	// PacketsIgnored counts packets the worker's L4 handlers skipped because
	// their ICMP/TCP/UDP header was too short or inconsistent.
	PacketsIgnored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmon_packets_ignored_total",
		Help: "Packets skipped because their L4 header was too short or inconsistent.",
	})

	// PacketsMalformed counts frames the parser rejected as truncated or
	// otherwise inconsistent.
	PacketsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmon_packets_malformed_total",
		Help: "Frames rejected by the parser as malformed.",
	})

	// EventsEmitted counts events written to the event file, labeled by kind.
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netmon_events_emitted_total",
		Help: "Events appended to the event log, by kind.",
	}, []string{"kind"})

	// FlowsTracked counts new TCP connections admitted by the tracker.
	FlowsTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmon_tcp_flows_tracked_total",
		Help: "TCP connections admitted into the connection table.",
	})

	// FlowsDropped counts SYNs refused because the tracker was at capacity.
	FlowsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netmon_tcp_flows_dropped_total",
		Help: "SYNs refused because the connection table was full.",
	})

	// FlowsActive gauges the tracker's current live connection count.
	FlowsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netmon_tcp_flows_active",
		Help: "TCP connections currently tracked.",
	})
)

func init() {
	prometheus.MustRegister(
		PacketsReceived,
		PacketsIgnored,
		PacketsMalformed,
		EventsEmitted,
		FlowsTracked,
		FlowsDropped,
		FlowsActive,
	)
}
