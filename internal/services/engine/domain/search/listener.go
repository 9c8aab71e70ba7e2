package search

import "time"

// Stats is what listeners receive.
type Stats struct {
	Explored   int
	Candidate  any
	Score      float64
	Best       any
	BestScore  float64
	Elapsed    time.Duration
	StopReason StopReason
}

// ListenerFunc receives search statistics.
type ListenerFunc func(Stats)

// StatsListener holds optional search callbacks. Callbacks may run on worker
// goroutines but never concurrently with each other.
type StatsListener struct {
	onCandidate ListenerFunc
	onStop      ListenerFunc
}

// NewStatsListener creates an empty listener.
func NewStatsListener() *StatsListener {
	return &StatsListener{}
}

// OnCandidate is called after each root candidate is scored.
func (l *StatsListener) OnCandidate(fn ListenerFunc) *StatsListener {
	l.onCandidate = fn
	return l
}

// OnStop is called once when the search ends, with StopReason set.
func (l *StatsListener) OnStop(fn ListenerFunc) *StatsListener {
	l.onStop = fn
	return l
}

func (l *StatsListener) candidate(s Stats) {
	if l != nil && l.onCandidate != nil {
		l.onCandidate(s)
	}
}

func (l *StatsListener) stopped(s Stats) {
	if l != nil && l.onStop != nil {
		l.onStop(s)
	}
}
