package provider

// Stats tracks call outcomes for one registered provider.
type Stats struct {
	TotalRequests      int   `json:"total_requests"`
	SuccessfulRequests int   `json:"successful_requests"`
	FailedRequests     int   `json:"failed_requests"`
	TotalLatencyMs     int64 `json:"total_latency_ms"`
}

// SuccessRate returns the fraction of requests that succeeded, zero when
// no requests were made.
func (s Stats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

// AvgLatencyMs returns the mean request latency in milliseconds, zero
// when no requests were made.
func (s Stats) AvgLatencyMs() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalLatencyMs) / float64(s.TotalRequests)
}

func (s *Stats) record(latencyMs int64, ok bool) {
	s.TotalRequests++
	s.TotalLatencyMs += latencyMs
	if ok {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
	}
}
