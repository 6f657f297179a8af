package storage

import (
	"testing"
	"time"
)

func TestDatedKey(t *testing.T) {
	when := time.Date(2026, time.August, 23, 14, 30, 0, 0, time.UTC)

	key := DatedKey("overlays", "field-42.png", when)
	expected := "overlays/2026/08/23/field-42.png"
	if key != expected {
		t.Errorf("Expected key %s, got %s", expected, key)
	}
}

func TestDatedKey_ConvertsToUTC(t *testing.T) {
	// 23:30 on Aug 23 in UTC-5 is already Aug 24 in UTC
	loc := time.FixedZone("UTC-5", -5*60*60)
	when := time.Date(2026, time.August, 23, 23, 30, 0, 0, loc)

	key := DatedKey("originals", "capture.tif", when)
	expected := "originals/2026/08/24/capture.tif"
	if key != expected {
		t.Errorf("Expected key %s, got %s", expected, key)
	}
}

func TestDatedKey_ZeroPadding(t *testing.T) {
	when := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)

	key := DatedKey("overlays", "a.png", when)
	expected := "overlays/2026/01/05/a.png"
	if key != expected {
		t.Errorf("Expected key %s, got %s", expected, key)
	}
}
