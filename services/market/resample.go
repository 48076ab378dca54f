package market

// Resample aggregates bars into coarser buckets of bucketMs
// milliseconds, aligned to the Unix epoch. Open takes the first bar of
// the bucket, close the last, high/low the extremes and volume the sum.
// Input is sorted and deduplicated first; buckets with no source bars
// are simply absent from the output.
func Resample(bars []Bar, bucketMs int64) []Bar {
	if bucketMs <= 0 || len(bars) == 0 {
		return nil
	}
	bars = SortDedup(bars)

	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		start := b.Timestamp - b.Timestamp%bucketMs
		if n := len(out); n > 0 && out[n-1].Timestamp == start {
			agg := &out[n-1]
			if b.High.GreaterThan(agg.High) {
				agg.High = b.High
			}
			if b.Low.LessThan(agg.Low) {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume = agg.Volume.Add(b.Volume)
			continue
		}
		out = append(out, Bar{
			Timestamp: start,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return out
}
