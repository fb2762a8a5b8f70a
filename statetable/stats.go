package statetable

import "time"

// PeriodStatistics summarises the time between successive Advance calls.
type PeriodStatistics struct {
	Samples uint64        `json:"samples"`
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
}

type periodStats struct {
	n     uint64
	total time.Duration
	min   time.Duration
	max   time.Duration
	last  time.Duration
}

func (p *periodStats) add(d time.Duration) {
	if p.n == 0 || d < p.min {
		p.min = d
	}
	if d > p.max {
		p.max = d
	}
	p.n++
	p.total += d
	p.last = d
}

// Statistics returns the advance period statistics.
func (t *Table) Statistics() PeriodStatistics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := PeriodStatistics{
		Samples: t.period.n,
		Min:     t.period.min,
		Max:     t.period.max,
		Last:    t.period.last,
	}
	if t.period.n > 0 {
		s.Average = t.period.total / time.Duration(t.period.n)
	}
	return s
}
