package services

import (
	"testing"
	"time"
)

func kst(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 8, 30, 0, 0, time.FixedZone("KST", 9*60*60))
}

func TestHolidayService_IsWorkdayKR(t *testing.T) {
	s := NewHolidayService()

	tests := []struct {
		name     string
		date     time.Time
		expected bool
	}{
		{"regular monday", kst(2026, 3, 16), true},
		{"saturday", kst(2026, 3, 14), false},
		{"seollal eve 2026", kst(2026, 2, 16), false},
		{"seollal 2026", kst(2026, 2, 17), false},
		{"seollal after 2026", kst(2026, 2, 18), false},
		{"day after seollal break", kst(2026, 2, 19), true},
		{"seollal 2025", kst(2025, 1, 29), false},
		{"chuseok 2026", kst(2026, 9, 25), false},
		{"chuseok eve 2026", kst(2026, 9, 24), false},
		{"childrens day", kst(2026, 5, 5), false},
		{"hangul day", kst(2026, 10, 9), false},
		{"christmas", kst(2026, 12, 25), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsWorkday(tt.date, "KR"); got != tt.expected {
				t.Errorf("IsWorkday(%s) = %v, expected %v", tt.date.Format("2006-01-02"), got, tt.expected)
			}
		})
	}
}

func TestHolidayService_UnknownCountryWeekdaysOnly(t *testing.T) {
	s := NewHolidayService()
	if !s.IsWorkday(kst(2026, 2, 17), "NONE") {
		t.Error("NONE should ignore holidays")
	}
	if s.IsWorkday(kst(2026, 3, 15), "XX") {
		t.Error("sunday should never be a workday")
	}
}

func TestHolidayService_FirstWorkdayOfWeek(t *testing.T) {
	s := NewHolidayService()

	tests := []struct {
		name     string
		date     time.Time
		expected time.Time
	}{
		{"plain week from monday", kst(2026, 3, 16), kst(2026, 3, 16)},
		{"plain week from friday", kst(2026, 3, 20), kst(2026, 3, 16)},
		{"plain week from sunday", kst(2026, 3, 22), kst(2026, 3, 16)},
		{"seollal week", kst(2026, 2, 18), kst(2026, 2, 19)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.FirstWorkdayOfWeek(tt.date, "KR")
			if got.Format("2006-01-02") != tt.expected.Format("2006-01-02") {
				t.Errorf("FirstWorkdayOfWeek() = %s, expected %s", got.Format("2006-01-02"), tt.expected.Format("2006-01-02"))
			}
		})
	}

	if !s.IsFirstWorkdayOfWeek(kst(2026, 2, 19), "KR") {
		t.Error("thursday after seollal should be the first workday")
	}
	if s.IsFirstWorkdayOfWeek(kst(2026, 3, 17), "KR") {
		t.Error("tuesday of a normal week is not the first workday")
	}
}

func TestIsSupportedCountry(t *testing.T) {
	for _, code := range []string{"KR", "CN", "NONE"} {
		if !IsSupportedCountry(code) {
			t.Errorf("IsSupportedCountry(%q) = false", code)
		}
	}
	if IsSupportedCountry("ZZ") {
		t.Error("IsSupportedCountry(ZZ) = true")
	}
}
