package common

import "testing"

func TestHasAny(t *testing.T) {
	if !HasAny("Patchy Light RAIN", "drizzle", "rain") {
		t.Fatalf("expected case-insensitive match")
	}
	if HasAny("Sunny", "rain", "snow") || HasAny("Sunny") {
		t.Fatalf("unexpected match")
	}
}
