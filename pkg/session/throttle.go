package session

import "time"

// Throttle bounds how fast the engine reacts to a repeating error
// condition. Hits are counted per 64-second bucket; once a bucket exceeds
// the limit, every further hit in it pays a one second pause. The condition
// still makes progress, it just cannot consume a CPU doing so.
type Throttle struct {
	limit  int
	pause  time.Duration
	bucket int64
	count  int

	now   func() time.Time
	sleep func(time.Duration)
}

func NewThrottle() *Throttle {
	return &Throttle{
		limit: 20,
		pause: time.Second,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Hit records one occurrence of the throttled condition, sleeping if it is
// firing too often.
func (t *Throttle) Hit() {
	bucket := t.now().Unix() >> 6
	if bucket != t.bucket {
		t.bucket = bucket
		t.count = 0
	}
	t.count++
	if t.count > t.limit {
		t.sleep(t.pause)
	}
}
