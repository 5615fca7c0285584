package candles

import (
	"time"

	"github.com/ykarpov/brokersim/pkg/common"
)

// bucketIterator walks cache buckets backwards in time, starting from the
// bucket that contains the instant just before the requested upper bound.
// Daily candles are bucketed per calendar year, every other interval per
// calendar day.
type bucketIterator struct {
	yearly  bool
	to      time.Time
	initial time.Time
	current time.Time
}

func newBucketIterator(interval common.Interval, to time.Time) *bucketIterator {
	// The upper bound is exclusive, so back off 1ms before truncating to a
	// date: to = 2022-04-29T00:00Z means the latest wanted candle is on the 28th.
	d := to.Add(-time.Millisecond).UTC()
	initial := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return &bucketIterator{
		yearly:  interval == common.IntervalDay,
		to:      to,
		initial: initial,
		current: initial,
	}
}

func (it *bucketIterator) next() {
	it.current = it.addStep(it.current, -1)
}

// chunkRange is the [from, to) window covered by the current bucket.
func (it *bucketIterator) chunkRange() (time.Time, time.Time) {
	from := it.current
	if it.yearly {
		from = time.Date(from.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return from, it.addStep(from, 1)
}

// needsToday reports whether the requested window reaches into the current
// wall-clock day, whose bucket is still open and must bypass the cache.
func (it *bucketIterator) needsToday(now time.Time) bool {
	n := now.UTC()
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return it.to.After(midnight)
}

// totalRange is the full window actually covered by the walk so far,
// extended to the requested upper bound.
func (it *bucketIterator) totalRange() Range {
	afterInitial := it.addStep(it.initial, 1)
	to := afterInitial
	if it.to.After(to) {
		to = it.to
	}
	return Range{From: it.current, To: to}
}

// bucketName is the cache file stem: the year for yearly buckets, the date
// otherwise.
func (it *bucketIterator) bucketName() string {
	if it.yearly {
		return it.current.Format("2006")
	}
	return it.current.Format("2006-01-02")
}

func (it *bucketIterator) addStep(t time.Time, count int) time.Time {
	if it.yearly {
		return t.AddDate(count, 0, 0)
	}
	return t.AddDate(0, 0, count)
}
