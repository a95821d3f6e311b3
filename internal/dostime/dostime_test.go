package dostime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	// 2023-11-05 14:32:46, packed per spec.md §6.
	date := uint16((2023-1980)<<9 | 11<<5 | 5)
	timeField := uint16(14<<11 | 32<<5 | 23) // second field stores seconds/2

	got := Decode(date, timeField, time.UTC)
	want := time.Date(2023, time.November, 5, 14, 32, 46, 0, time.UTC)
	assert.True(t, got.Equal(want), "got %v, want %v", got, want)
}

func TestDecodeClampsZeroMonthAndDay(t *testing.T) {
	got := Decode(0, 0, time.UTC)
	assert.Equal(t, 1980, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 1, got.Day())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := time.Date(2001, time.March, 17, 9, 15, 30, 0, time.UTC)
	date, timeField := Encode(want)
	got := Decode(date, timeField, time.UTC)
	assert.True(t, got.Equal(want), "got %v, want %v", got, want)
}
