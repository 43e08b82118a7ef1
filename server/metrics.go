package server

import "sync/atomic"

// Metrics counts relay activity for /metrics.
type Metrics struct {
	Requests        atomic.Int64
	Registrations   atomic.Int64
	UpdatesAccepted atomic.Int64
	UpdatesRejected atomic.Int64
	ChatPosted      atomic.Int64
	ChatRejected    atomic.Int64
	StreamClients   atomic.Int64
}

// Snapshot returns a copy suitable for JSON output.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"requests":         m.Requests.Load(),
		"registrations":    m.Registrations.Load(),
		"updates_accepted": m.UpdatesAccepted.Load(),
		"updates_rejected": m.UpdatesRejected.Load(),
		"chat_posted":      m.ChatPosted.Load(),
		"chat_rejected":    m.ChatRejected.Load(),
		"stream_clients":   m.StreamClients.Load(),
	}
}
