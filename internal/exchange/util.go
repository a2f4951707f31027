package exchange

import "time"

// msToTime converts a Binance-style millisecond Unix timestamp to time.Time.
func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
