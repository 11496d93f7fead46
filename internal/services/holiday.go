package services

import (
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/us"
)

// Korean public holidays. Seollal and Chuseok follow the lunar calendar and
// span three days each.
var (
	krNewYear      = fixedHoliday("신정", time.January, 1)
	krIndependence = fixedHoliday("삼일절", time.March, 1)
	krChildrensDay = fixedHoliday("어린이날", time.May, 5)
	krMemorialDay  = fixedHoliday("현충일", time.June, 6)
	krLiberation   = fixedHoliday("광복절", time.August, 15)
	krFoundation   = fixedHoliday("개천절", time.October, 3)
	krHangul       = fixedHoliday("한글날", time.October, 9)
	krChristmas    = fixedHoliday("성탄절", time.December, 25)
	krSeollalEve   = lunarHoliday("설날 연휴", 1, 1, -1)
	krSeollal      = lunarHoliday("설날", 1, 1, 0)
	krSeollalAfter = lunarHoliday("설날 연휴", 1, 1, 1)
	krChuseokEve   = lunarHoliday("추석 연휴", 8, 15, -1)
	krChuseok      = lunarHoliday("추석", 8, 15, 0)
	krChuseokAfter = lunarHoliday("추석 연휴", 8, 15, 1)
	krBuddhasDay   = lunarHoliday("부처님 오신 날", 4, 8, 0)

	KoreanHolidays = []*cal.Holiday{
		krNewYear, krIndependence, krChildrensDay, krMemorialDay, krLiberation,
		krFoundation, krHangul, krChristmas,
		krSeollalEve, krSeollal, krSeollalAfter,
		krChuseokEve, krChuseok, krChuseokAfter,
		krBuddhasDay,
	}
)

func fixedHoliday(name string, month time.Month, day int) *cal.Holiday {
	return &cal.Holiday{
		Name:  name,
		Type:  cal.ObservancePublic,
		Month: month,
		Day:   day,
		Func:  cal.CalcDayOfMonth,
	}
}

// lunarHoliday is lunar month/day of the solar year, shifted by offset days.
func lunarHoliday(name string, lunarMonth, lunarDay, offset int) *cal.Holiday {
	return &cal.Holiday{
		Name:   name,
		Type:   cal.ObservancePublic,
		Offset: offset,
		Func: func(h *cal.Holiday, year int) time.Time {
			solar := calendar.NewLunarFromYmd(year, lunarMonth, lunarDay).GetSolar()
			d := time.Date(solar.GetYear(), time.Month(solar.GetMonth()), solar.GetDay(), 0, 0, 0, 0, cal.DefaultLoc)
			return d.AddDate(0, 0, h.Offset)
		},
	}
}

type CountryInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	NameKo string `json:"name_ko"`
}

var supportedCountries = []CountryInfo{
	{Code: "KR", Name: "South Korea", NameKo: "대한민국"},
	{Code: "CN", Name: "China", NameKo: "중국"},
	{Code: "JP", Name: "Japan", NameKo: "일본"},
	{Code: "US", Name: "United States", NameKo: "미국"},
	{Code: "GB", Name: "United Kingdom", NameKo: "영국"},
	{Code: "DE", Name: "Germany", NameKo: "독일"},
	{Code: "NONE", Name: "Weekdays Only (Mon-Fri)", NameKo: "평일만 (월-금)"},
}

func IsSupportedCountry(code string) bool {
	for _, c := range supportedCountries {
		if c.Code == code {
			return true
		}
	}
	return false
}

// HolidayService answers workday questions for the report scheduler.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{calendars: make(map[string]*cal.BusinessCalendar)}
	s.calendars["KR"] = newCalendar("South Korea", KoreanHolidays...)
	s.calendars["JP"] = newCalendar("Japan", jp.Holidays...)
	s.calendars["US"] = newCalendar("United States", us.Holidays...)
	s.calendars["GB"] = newCalendar("United Kingdom", gb.Holidays...)
	s.calendars["DE"] = newCalendar("Germany", de.Holidays...)
	return s
}

func newCalendar(name string, holidays ...*cal.Holiday) *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	c.Name = name
	c.AddHoliday(holidays...)
	return c
}

// IsWorkday reports whether t's calendar date is a workday in countryCode.
// Unknown codes and NONE only skip weekends.
func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	if countryCode == "CN" {
		return isWorkdayChina(t)
	}
	c, ok := s.calendars[countryCode]
	if !ok {
		return !cal.IsWeekend(t)
	}
	// cal evaluates holidays in its default location; compare by date only.
	day := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, cal.DefaultLoc)
	return c.IsWorkday(day)
}

func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromYmd(t.Year(), int(t.Month()), t.Day())
	if holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); holiday != nil {
		return holiday.IsWork()
	}
	return !cal.IsWeekend(t)
}

// FirstWorkdayOfWeek returns the date of the first workday in the Monday to
// Sunday week containing t, in t's location. The zero time means the whole
// week is off.
func (s *HolidayService) FirstWorkdayOfWeek(t time.Time, countryCode string) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		if s.IsWorkday(day, countryCode) {
			return day
		}
	}
	return time.Time{}
}

func (s *HolidayService) IsFirstWorkdayOfWeek(t time.Time, countryCode string) bool {
	first := s.FirstWorkdayOfWeek(t, countryCode)
	return !first.IsZero() && first.Year() == t.Year() && first.YearDay() == t.YearDay()
}

func (s *HolidayService) GetSupportedCountries() []CountryInfo {
	out := make([]CountryInfo, len(supportedCountries))
	copy(out, supportedCountries)
	return out
}
