package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldExtraction(t *testing.T) {
	ts := uint64(20200102093000123)
	assert.Equal(t, uint32(20200102), Day(ts))
	assert.Equal(t, 9, Hour(ts))
	assert.Equal(t, 30, Minute(ts))
	assert.Equal(t, 0, Second(ts))
	assert.Equal(t, 123, Milli(ts))
	assert.Equal(t, 2020, Year(ts))
}

func TestCompose(t *testing.T) {
	ts := Compose(20200102, 9, 30, 0, 123)
	assert.Equal(t, uint64(20200102093000123), ts)
}

func TestSameDay(t *testing.T) {
	a := Compose(20200102, 9, 30, 0, 0)
	b := Compose(20200102, 15, 59, 59, 999)
	c := Compose(20200103, 9, 30, 0, 0)
	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, c))
}

func TestMsSinceMidnight(t *testing.T) {
	ts := Compose(20200102, 9, 30, 1, 250)
	assert.Equal(t, ((9*60+30)*60+1)*1000+250, MsSinceMidnight(ts))
}

func TestIncMs(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		want uint64
	}{
		{"plain", Compose(20200102, 9, 30, 0, 0), Compose(20200102, 9, 30, 0, 1)},
		{"ms rollover", Compose(20200102, 9, 30, 0, 999), Compose(20200102, 9, 30, 1, 0)},
		{"second rollover", Compose(20200102, 9, 30, 59, 999), Compose(20200102, 9, 31, 0, 0)},
		{"minute rollover", Compose(20200102, 9, 59, 59, 999), Compose(20200102, 10, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IncMs(tt.in))
		})
	}
}

func TestDayString(t *testing.T) {
	assert.Equal(t, "2020-01-02", DayString(20200102))
}
