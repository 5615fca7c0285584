package candles

import (
	"testing"
	"time"

	"github.com/ykarpov/brokersim/pkg/common"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBucketIterator_InitialBucket(t *testing.T) {
	tests := []struct {
		name     string
		interval common.Interval
		to       time.Time
		want     time.Time
	}{
		{"midnight backs off to previous day", common.IntervalHour, date(2022, 4, 29), date(2022, 4, 28)},
		{"mid-day stays on same day", common.Interval1Min, time.Date(2022, 4, 28, 15, 30, 0, 0, time.UTC), date(2022, 4, 28)},
		{"daily interval keeps day precision", common.IntervalDay, date(2022, 4, 29), date(2022, 4, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newBucketIterator(tt.interval, tt.to)
			if !it.current.Equal(tt.want) {
				t.Errorf("initial bucket = %v; want %v", it.current, tt.want)
			}
		})
	}
}

func TestBucketIterator_ChunkRange(t *testing.T) {
	it := newBucketIterator(common.IntervalHour, date(2022, 4, 29))
	from, to := it.chunkRange()
	if !from.Equal(date(2022, 4, 28)) || !to.Equal(date(2022, 4, 29)) {
		t.Errorf("day chunk range = [%v, %v)", from, to)
	}

	it = newBucketIterator(common.IntervalDay, date(2022, 4, 29))
	from, to = it.chunkRange()
	if !from.Equal(date(2022, 1, 1)) || !to.Equal(date(2023, 1, 1)) {
		t.Errorf("year chunk range = [%v, %v)", from, to)
	}
}

func TestBucketIterator_BucketName(t *testing.T) {
	it := newBucketIterator(common.IntervalHour, date(2022, 4, 29))
	if got := it.bucketName(); got != "2022-04-28" {
		t.Errorf("day bucket name = %q; want 2022-04-28", got)
	}
	it.next()
	if got := it.bucketName(); got != "2022-04-27" {
		t.Errorf("previous day bucket name = %q; want 2022-04-27", got)
	}

	it = newBucketIterator(common.IntervalDay, date(2022, 4, 29))
	if got := it.bucketName(); got != "2022" {
		t.Errorf("year bucket name = %q; want 2022", got)
	}
	it.next()
	if got := it.bucketName(); got != "2021" {
		t.Errorf("previous year bucket name = %q; want 2021", got)
	}
}

func TestBucketIterator_NeedsToday(t *testing.T) {
	now := time.Date(2022, 4, 28, 13, 45, 0, 0, time.UTC)

	it := newBucketIterator(common.IntervalHour, date(2022, 4, 28))
	if it.needsToday(now) {
		t.Error("window ending at today midnight must not need today's bucket")
	}

	it = newBucketIterator(common.IntervalHour, time.Date(2022, 4, 28, 12, 0, 0, 0, time.UTC))
	if !it.needsToday(now) {
		t.Error("window reaching into today must need today's bucket")
	}
}

func TestBucketIterator_TotalRange(t *testing.T) {
	it := newBucketIterator(common.IntervalHour, date(2022, 4, 29))
	it.next()
	it.next()

	r := it.totalRange()
	if !r.From.Equal(date(2022, 4, 26)) {
		t.Errorf("total range from = %v; want 2022-04-26", r.From)
	}
	if !r.To.Equal(date(2022, 4, 29)) {
		t.Errorf("total range to = %v; want 2022-04-29", r.To)
	}
}
