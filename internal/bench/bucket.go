package bench

import "time"

// Bucket keys, mirroring runtime/bucket.json.
const (
	bucketKey          = "bucket"
	bucketAtimeField   = "atime"
	bucketGapField     = "gap"
	bucketMinGapField  = "min_gap"
	bucketMinChangeGap = "min_change_gap"
)

const (
	defaultGap          int64 = 30
	defaultMinGap       int64 = 10
	defaultMinChangeGap int64 = 10
	minDurationToNext          = 100 * time.Millisecond
)

// defaultBucket returns a freshly-defaulted bucket record stamped with
// the current time, mirroring default_bucket() in the source this was
// modeled on: accessing an unset bucket always behaves as if it had just
// been touched.
func defaultBucket() JSONObject {
	return JSONObject{
		bucketAtimeField:   nowTS(),
		bucketGapField:     defaultGap,
		bucketMinGapField:  defaultMinGap,
		bucketMinChangeGap: defaultMinChangeGap,
	}
}

// bucketOrDefault returns runtime.bucket if set, else a fresh default —
// without writing anything back. Used by read-only queries such as
// BucketDurationToNext.
func bucketOrDefault(b Bench) JSONObject {
	v, ok := b.Runtime.Get(bucketKey)
	if !ok {
		return defaultBucket()
	}
	obj, ok := v.(JSONObject)
	if !ok {
		return defaultBucket()
	}
	return obj
}

// bucketChecked ensures runtime.bucket exists, writing a fresh default in
// if it was absent, and returns the (possibly updated) bench along with
// the bucket record now guaranteed present.
func bucketChecked(b Bench) (Bench, JSONObject) {
	if v, ok := b.Runtime.Get(bucketKey); ok {
		if obj, ok := v.(JSONObject); ok {
			return b, obj
		}
	}
	bucket := defaultBucket()
	b.Runtime = b.Runtime.Set(bucketKey, bucket)
	return b, bucket
}

func bucketInt64(bucket JSONObject, key string, fallback int64) int64 {
	v, ok := bucket[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return fallback
	}
}

func bucketAtime(bucket JSONObject) time.Time {
	s, _ := bucket[bucketAtimeField].(string)
	t, err := ParseTS(s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

func setBucket(b Bench, bucket JSONObject) Bench {
	b.Runtime = b.Runtime.Set(bucketKey, bucket)
	return b
}

// BucketAccess stamps runtime.bucket.atime with now, initialising the
// bucket with defaults first if unset. Every domain operation that
// touches a subject's up_info calls this last (§3: "bucket access is
// recorded whenever a subject's info is modified").
func BucketAccess(b Bench) Bench {
	b, bucket := bucketChecked(b)
	bucket = cloneJSONObject(bucket)
	bucket[bucketAtimeField] = nowTS()
	return setBucket(b, bucket)
}

// BucketGood narrows the refresh gap after a successful, uneventful
// fetch: gap = max(gap - min_change_gap, min_gap).
func BucketGood(b Bench) Bench {
	b, bucket := bucketChecked(b)
	bucket = cloneJSONObject(bucket)
	gap := bucketInt64(bucket, bucketGapField, defaultGap)
	minGap := bucketInt64(bucket, bucketMinGapField, defaultMinGap)
	minChange := bucketInt64(bucket, bucketMinChangeGap, defaultMinChangeGap)
	next := gap - minChange
	if next < minGap {
		next = minGap
	}
	bucket[bucketGapField] = next
	return setBucket(b, bucket)
}

// BucketHang widens the gap after a fetch that produced nothing new,
// jittered by the pre-update atime's Unix-millisecond value modulo 7 so that
// many subjects hung at once don't all retry in lockstep:
// gap = gap + min_change_gap + (old_atime_unixmilli % 7).
func BucketHang(b Bench) Bench {
	b, bucket := bucketChecked(b)
	oldAtime := bucketAtime(bucket)
	jitter := oldAtime.UnixMilli() % 7
	if jitter < 0 {
		jitter += 7
	}
	bucket = cloneJSONObject(bucket)
	gap := bucketInt64(bucket, bucketGapField, defaultGap)
	minChange := bucketInt64(bucket, bucketMinChangeGap, defaultMinChangeGap)
	bucket[bucketGapField] = gap + minChange + jitter
	return setBucket(b, bucket)
}

// BucketDoubleGap doubles the current gap outright; ForceSilence uses it
// as a bus-wide backoff (§3: ForceSilence).
func BucketDoubleGap(b Bench) Bench {
	b, bucket := bucketChecked(b)
	bucket = cloneJSONObject(bucket)
	gap := bucketInt64(bucket, bucketGapField, defaultGap)
	bucket[bucketGapField] = gap * 2
	return setBucket(b, bucket)
}

// BucketDurationToNext reports how long to wait before the next fetch is
// due: max(atime + gap - now, 100ms). It never mutates the bench.
func BucketDurationToNext(b Bench) time.Duration {
	bucket := bucketOrDefault(b)
	atime := bucketAtime(bucket)
	gap := bucketInt64(bucket, bucketGapField, defaultGap)
	due := atime.Add(time.Duration(gap) * time.Second)
	d := time.Until(due)
	if d < minDurationToNext {
		return minDurationToNext
	}
	return d
}
