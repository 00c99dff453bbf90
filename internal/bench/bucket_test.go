package bench

import "testing"

func gap(b Bench) int64 {
	v, _ := b.Runtime.Get("bucket")
	obj, _ := v.(JSONObject)
	return bucketInt64(obj, bucketGapField, defaultGap)
}

func TestBucketAccessInitialisesDefaultBucket(t *testing.T) {
	b := New()
	b = BucketAccess(b)
	v, ok := b.Runtime.Get("bucket")
	if !ok {
		t.Fatalf("expected runtime.bucket to be set after BucketAccess")
	}
	obj := v.(JSONObject)
	if obj[bucketGapField] != defaultGap {
		t.Fatalf("gap = %v, want default %d", obj[bucketGapField], defaultGap)
	}
}

func TestBucketGoodNarrowsGapButNotBelowMinGap(t *testing.T) {
	b := New()
	b = BucketAccess(b) // gap=30, min_gap=10, min_change_gap=10
	b = BucketGood(b)   // 30-10=20
	if got := gap(b); got != 20 {
		t.Fatalf("gap after one BucketGood = %d, want 20", got)
	}
	b = BucketGood(b) // 20-10=10
	b = BucketGood(b) // floor at min_gap=10
	if got := gap(b); got != defaultMinGap {
		t.Fatalf("gap should floor at min_gap=%d, got %d", defaultMinGap, got)
	}
}

func TestBucketHangWidensGap(t *testing.T) {
	b := New()
	b = BucketAccess(b)
	before := gap(b)
	b = BucketHang(b)
	after := gap(b)
	if after < before+defaultMinChangeGap {
		t.Fatalf("BucketHang should widen the gap by at least min_change_gap: %d -> %d", before, after)
	}
}

func TestBucketDoubleGap(t *testing.T) {
	b := New()
	b = BucketAccess(b)
	before := gap(b)
	b = BucketDoubleGap(b)
	if after := gap(b); after != before*2 {
		t.Fatalf("BucketDoubleGap: %d -> %d, want %d", before, after, before*2)
	}
}

func TestBucketDurationToNextNeverBelowFloor(t *testing.T) {
	b := New()
	b = BucketAccess(b)
	d := BucketDurationToNext(b)
	if d < minDurationToNext {
		t.Fatalf("BucketDurationToNext = %v, want >= %v", d, minDurationToNext)
	}
}
