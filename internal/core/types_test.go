package core

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"midnight utc", time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"intraday", time.Date(2018, 10, 1, 23, 59, 59, 999, time.UTC), time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"zoned", time.Date(2018, 10, 2, 3, 0, 0, 0, loc), time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"from millis", time.UnixMilli(1538352000000 + 3600_000), time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Day(tt.in)
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("Day(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2018-10-01")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Unix() != 1538352000 {
		t.Errorf("expected 1538352000, got %d", d.Unix())
	}

	if _, err := ParseDate("01/10/2018"); err == nil {
		t.Error("expected error for bad layout")
	}
}

func TestNullFloat64_RoundTrip(t *testing.T) {
	tests := []NullFloat64{
		{},
		Float(0),
		Float(6543.123456),
		Float(1.5e12),
	}

	for _, in := range tests {
		got, err := ParseNullFloat64(in.String())
		if err != nil {
			t.Fatalf("ParseNullFloat64(%q): %v", in.String(), err)
		}
		if got != in {
			t.Errorf("round trip %v -> %v", in, got)
		}
	}

	if _, err := ParseNullFloat64("abc"); err == nil {
		t.Error("expected parse error")
	}
}

func TestRecord_Tradable(t *testing.T) {
	tests := []struct {
		name string
		r    Record
		want bool
	}{
		{"defined", Record{NVT: Float(10), Price: Float(100)}, true},
		{"undefined nvt", Record{Price: Float(100)}, false},
		{"undefined price", Record{NVT: Float(10)}, false},
		{"zero price", Record{NVT: Float(10), Price: Float(0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Tradable(); got != tt.want {
				t.Errorf("Tradable() = %v, want %v", got, tt.want)
			}
		})
	}
}
