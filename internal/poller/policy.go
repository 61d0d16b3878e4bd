package poller

import (
	"time"

	"genqueue/internal/config"
)

// Policy controls polling cadence and progress estimation.
type Policy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	// Fixed keeps every delay at InitialInterval.
	Fixed         bool
	HiddenFactor  float64
	MaxAttempts   int
	SlowInterval  time.Duration
	RetryInterval time.Duration
	ProgressCap   float64
}

// DefaultPolicy is the image cadence.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 950 * time.Millisecond,
		Multiplier:      1.15,
		MaxInterval:     2500 * time.Millisecond,
		HiddenFactor:    2,
		MaxAttempts:     120,
		SlowInterval:    5 * time.Second,
		RetryInterval:   1500 * time.Millisecond,
		ProgressCap:     98,
	}
}

// FixedPolicy is the video cadence: one request per interval.
func FixedPolicy(interval time.Duration) Policy {
	p := DefaultPolicy()
	p.InitialInterval = interval
	p.MaxInterval = interval
	p.Multiplier = 1
	p.Fixed = true
	return p
}

// PolicyFromConfig builds the cadence for one variant.
func PolicyFromConfig(cfg config.Poll, fixed bool) Policy {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	p := Policy{
		InitialInterval: ms(cfg.InitialIntervalMS),
		Multiplier:      cfg.Multiplier,
		MaxInterval:     ms(cfg.MaxIntervalMS),
		HiddenFactor:    cfg.HiddenFactor,
		MaxAttempts:     cfg.MaxAttempts,
		SlowInterval:    ms(cfg.SlowIntervalMS),
		RetryInterval:   ms(cfg.RetryIntervalMS),
		ProgressCap:     98,
	}
	if fixed {
		p.Fixed = true
		p.InitialInterval = ms(cfg.VideoIntervalMS)
		p.MaxInterval = p.InitialInterval
		p.Multiplier = 1
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.HiddenFactor < 1 {
		p.HiddenFactor = def.HiddenFactor
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.SlowInterval <= 0 {
		p.SlowInterval = def.SlowInterval
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = def.RetryInterval
	}
	if p.ProgressCap <= 0 || p.ProgressCap >= 100 {
		p.ProgressCap = def.ProgressCap
	}
	return p
}

// Delay returns the wait after the given (1-based) attempt. It is pure: the
// geometric growth is recomputed from the attempt number.
func (p Policy) Delay(attempt int, hidden bool) time.Duration {
	var base time.Duration
	switch {
	case p.Exhausted(attempt):
		base = p.SlowInterval
	case p.Fixed:
		base = p.InitialInterval
	default:
		interval := float64(p.InitialInterval)
		for i := 1; i < attempt; i++ {
			interval *= p.Multiplier
			if interval >= float64(p.MaxInterval) {
				interval = float64(p.MaxInterval)
				break
			}
		}
		base = time.Duration(interval)
	}
	if hidden && p.HiddenFactor > 1 {
		base = time.Duration(float64(base) * p.HiddenFactor)
	}
	return base
}

// Exhausted reports whether the soft attempt budget is spent.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Progress picks the displayed percentage: the server's figure when present,
// otherwise an estimate from the attempt count. Both stay below ProgressCap.
func (p Policy) Progress(server *float64, attempt int) float64 {
	var value float64
	if server != nil {
		value = *server
	} else if p.MaxAttempts > 0 {
		value = float64(attempt) / float64(p.MaxAttempts) * 100
	}
	if value < 0 {
		value = 0
	}
	if value > p.ProgressCap {
		value = p.ProgressCap
	}
	return value
}
