package requestor

import "time"

// backoffDuration implements the backoff curve shared by HTTP retries and
// WS reconnects: start at 500ms, double each step until a 2000ms cap,
// then add 2000ms per further step. step is 1-indexed: backoffDuration(1)
// is the wait before the second attempt.
func backoffDuration(step int) time.Duration {
	d := 500 * time.Millisecond
	const cap500 = 2000 * time.Millisecond
	for i := 1; i < step; i++ {
		if d < cap500 {
			d *= 2
			if d > cap500 {
				d = cap500
			}
		} else {
			d += 2000 * time.Millisecond
		}
	}
	return d
}
