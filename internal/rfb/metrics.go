package rfb

import "expvar"

// Process-wide operational counters published via expvar: a small set of
// live gauges/counters an operator (or the diagnostics bundle) can read
// from /debug/vars without touching the session set's mutex.
var (
	metricActiveSessions = expvar.NewInt("rfb_active_sessions")
	metricFramesCaptured = expvar.NewInt("rfb_frames_captured")
	metricBytesEncoded   = expvar.NewMap("rfb_bytes_encoded_by_encoding")
)

func recordEncoded(enc EncodingType, n int) {
	metricBytesEncoded.Add(enc.String(), int64(n))
}
