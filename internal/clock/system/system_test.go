package system

import (
	"testing"
	"time"
)

func TestClockReportsInLocation(t *testing.T) {
	t.Parallel()

	lkt := time.FixedZone("LKT", 5*3600+1800)
	cases := []struct {
		name   string
		loc    *time.Location
		offset int
	}{
		{"nil means utc", nil, 0},
		{"fixed zone", lkt, 19800},
	}
	for _, tc := range cases {
		clk := New(tc.loc)
		before := time.Now().Add(-time.Second)
		got := clk.Now()
		if _, offset := got.Zone(); offset != tc.offset {
			t.Fatalf("%s: offset = %d, want %d", tc.name, offset, tc.offset)
		}
		if got.Before(before) || got.After(time.Now().Add(time.Second)) {
			t.Fatalf("%s: %v is not current", tc.name, got)
		}
	}
}

func TestNewInZone(t *testing.T) {
	t.Parallel()

	clk, err := NewInZone("")
	if err != nil || clk.Location() != time.UTC {
		t.Fatalf("expected UTC clock, got %v, %v", clk, err)
	}
	if _, err := NewInZone("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
