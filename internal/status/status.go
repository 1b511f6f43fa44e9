// Package status tracks adapter liveness: the timestamps of the last accepted
// inbound event and the last outbound transmission, exposed in-process and as
// Prometheus gauges.
package status

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink records inbound/outbound activity per account. Safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	inbound  map[string]time.Time
	outbound map[string]time.Time

	inboundGauge  *prometheus.GaugeVec
	outboundGauge *prometheus.GaugeVec
	now           func() time.Time
}

// NewSink builds a sink and registers its gauges with reg. A nil registerer
// keeps the sink purely in-process.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		inbound:  make(map[string]time.Time),
		outbound: make(map[string]time.Time),
		inboundGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feishubot_last_inbound_timestamp_seconds",
			Help: "Unix time of the last accepted inbound message.",
		}, []string{"account"}),
		outboundGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feishubot_last_outbound_timestamp_seconds",
			Help: "Unix time of the last outbound transmission.",
		}, []string{"account"}),
		now: time.Now,
	}
	if reg != nil {
		reg.MustRegister(s.inboundGauge, s.outboundGauge)
	}
	return s
}

// MarkInbound records an accepted inbound message for the account.
func (s *Sink) MarkInbound(accountID string) {
	at := s.now()
	s.mu.Lock()
	s.inbound[accountID] = at
	s.mu.Unlock()
	s.inboundGauge.WithLabelValues(accountID).Set(float64(at.Unix()))
}

// MarkOutbound records an outbound transmission for the account.
func (s *Sink) MarkOutbound(accountID string) {
	at := s.now()
	s.mu.Lock()
	s.outbound[accountID] = at
	s.mu.Unlock()
	s.outboundGauge.WithLabelValues(accountID).Set(float64(at.Unix()))
}

// LastInbound returns the last accepted inbound time for the account.
func (s *Sink) LastInbound(accountID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbound[accountID]
}

// LastOutbound returns the last outbound transmission time for the account.
func (s *Sink) LastOutbound(accountID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbound[accountID]
}
