package session

import "time"

const pingWindow = 5

// PingStats is the heartbeat bookkeeping of a session.
type PingStats struct {
	LastSent    time.Time
	LastSuccess time.Time
	Delay       time.Duration
	Outstanding bool

	// send time of the ping behind LastSuccess, used to reject stale replies
	successSentAt time.Time
	recent        []time.Duration
}

// Average returns the mean of the last five round trips.
func (p PingStats) Average() time.Duration {
	if len(p.recent) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range p.recent {
		sum += d
	}
	return sum / time.Duration(len(p.recent))
}

// Samples returns a copy of the recorded round trips, oldest first.
func (p PingStats) Samples() []time.Duration {
	return append([]time.Duration(nil), p.recent...)
}

func (p *PingStats) record(sentAt, now time.Time) bool {
	if sentAt.Before(p.successSentAt) || sentAt.After(now) {
		return false
	}
	p.successSentAt = sentAt
	if now.After(p.LastSuccess) {
		p.LastSuccess = now
	}
	p.Delay = now.Sub(sentAt)
	p.Outstanding = false
	p.recent = append(p.recent, p.Delay)
	if len(p.recent) > pingWindow {
		p.recent = p.recent[1:]
	}
	return true
}
