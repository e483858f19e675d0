package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tashkent := time.FixedZone("UZT", 5*60*60)

	tests := []struct {
		name string
		t    time.Time
		loc  *time.Location
		want string
	}{
		{"utc mid month", time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), nil, "2026-10"},
		{"utc last second", time.Date(2026, 10, 31, 23, 59, 59, 0, time.UTC), time.UTC, "2026-10"},
		{"local rolls over first", time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC), tashkent, "2026-11"},
		{"year boundary", time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), tashkent, "2027-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.t, tt.loc))
		})
	}
}

func TestFixedClock(t *testing.T) {
	clock := NewFixed(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-10", Current(clock, time.UTC))

	clock.Set(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-11", Current(clock, time.UTC))
}
