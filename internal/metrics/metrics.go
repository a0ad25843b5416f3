package metrics

import (
	"sync/atomic"
	"time"
)

// ID identifies one counter or histogram slot.
type ID uint16

const (
	SignInSuccess ID = iota
	SignInFailure
	SignInLocked
	AccountLockedOut
	TwoFactorRequired
	TwoFactorSuccess
	TwoFactorFailure
	TwoFactorExpired
	TwoFactorRateLimited
	TOTPReplay
	RecoveryCodeUsed
	RecoveryCodesGenerated
	RefreshSuccess
	RefreshGraceReissue
	RefreshFailure
	RefreshTheftDetected
	SessionCreated
	SessionRevoked
	SessionRevokeAll
	PasswordResetRequest
	PasswordResetThrottled
	PasswordResetConfirmSuccess
	PasswordResetConfirmFailure
	PasswordChangeSuccess
	PasswordChangeInvalidOld
	PasswordHashUpgraded
	EmailChanged
	ValidateSuccess
	ValidateFailure
	SignInLatency
	RefreshLatency
	ValidateLatency
	idCount
)

// Count is the number of defined IDs.
const Count = int(idCount)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// IsHistogram reports whether id records latencies rather than counts.
func IsHistogram(id ID) bool {
	switch id {
	case SignInLatency, RefreshLatency, ValidateLatency:
		return true
	default:
		return false
	}
}

type histogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Registry holds every counter and histogram for one engine.
type Registry struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	histograms    [idCount]histogram
}

// Snapshot is a point-in-time copy of a Registry. Histogram slices hold
// non-cumulative bucket counts.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

func NewRegistry(enabled, latency bool) *Registry {
	return &Registry{
		enabled:       enabled,
		enableLatency: enabled && latency,
	}
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) LatencyEnabled() bool {
	return r != nil && r.enableLatency
}

func (r *Registry) Inc(id ID) {
	if r == nil || !r.enabled || id >= idCount || IsHistogram(id) {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

// Observe records d into the histogram id. Counter ids are ignored.
func (r *Registry) Observe(id ID, d time.Duration) {
	if r == nil || !r.enableLatency || id >= idCount || !IsHistogram(id) {
		return
	}
	atomic.AddUint64(&r.histograms[id].buckets[bucketIndex(d)], 1)
}

func (r *Registry) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil || !r.enabled {
		return Snapshot{
			Counters:   map[ID]uint64{},
			Histograms: map[ID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[ID]uint64, Count),
		Histograms: make(map[ID][]uint64, 3),
	}
	for id := ID(0); id < idCount; id++ {
		if IsHistogram(id) {
			if !r.enableLatency {
				continue
			}
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&r.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&r.counters[id].value)
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
