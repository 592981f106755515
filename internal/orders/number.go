package orders

import (
	"crypto/rand"
	"io"
	"time"
)

const (
	orderNumberPrefix = "ORD-"
	suffixLength      = 10
	suffixAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// Bytes at or above this bound are discarded so each symbol is equally likely.
	suffixByteLimit = 256 - 256%len(suffixAlphabet)
)

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXXXXXX for the given day.
func NewOrderNumber(now time.Time) string {
	return orderNumberFrom(now, rand.Reader)
}

func orderNumberFrom(now time.Time, src io.Reader) string {
	return orderNumberPrefix + now.UTC().Format("20060102") + "-" + randomSuffix(src, suffixLength)
}

func randomSuffix(src io.Reader, n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(src, buf); err != nil {
			panic("orders: random source failed: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= suffixByteLimit {
				continue
			}
			out = append(out, suffixAlphabet[int(b)%len(suffixAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
