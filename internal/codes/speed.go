package codes

import (
	"math"
	"strconv"
	"strings"
)

const fanSpeedPrefix = "fanSpeed"

// FanSpeeds returns the numeric speeds named by "fanSpeed<N>" keys, in
// configuration order. Keys with a non-numeric suffix are ignored.
func FanSpeeds(table *Entry) []int {
	var speeds []int
	for _, key := range table.Keys() {
		suffix, ok := strings.CutPrefix(key, fanSpeedPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		speeds = append(speeds, n)
	}
	return speeds
}

// NearestSpeed picks the configured speed closest to requested. On a tie the
// speed listed first in the table wins.
func NearestSpeed(table *Entry, requested int) (int, bool) {
	speeds := FanSpeeds(table)
	if len(speeds) == 0 {
		return 0, false
	}

	best := speeds[0]
	for _, s := range speeds[1:] {
		if math.Abs(float64(s-requested)) < math.Abs(float64(best-requested)) {
			best = s
		}
	}
	return best, true
}

// FanSpeedKey returns the table key for speed.
func FanSpeedKey(speed int) string {
	return fanSpeedPrefix + strconv.Itoa(speed)
}
