package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/scoring"
	"github.com/comadj/car-system/pkg/response"
	"gorm.io/gorm"
)

const (
	GroupTypeCompany  = "company"
	GroupTypeCustomer = "customer"
	GroupTypeManager  = "manager"

	unknownGroup = "Unknown"

	oneTimeWindowMonths    = 6
	continuousWindowMonths = 12
	trendTopGroups         = 10
)

type DashboardService struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func NewDashboardService(db *gorm.DB, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.Local
	}
	return &DashboardService{db: db, loc: loc, now: time.Now}
}

type StatusStats struct {
	Closed     int `json:"CLOSED"`
	InProgress int `json:"IN_PROGRESS"`
	Delayed    int `json:"DELAYED"`
	Total      int `json:"total"`
}

type GroupScore struct {
	Name             string  `json:"name"`
	AccumulatedScore float64 `json:"accumulatedScore"`
	SentimentScore   float64 `json:"sentimentScore"`
	EventCount       int     `json:"eventCount"`
}

type TrendGroup struct {
	Name           string  `json:"name"`
	Score          float64 `json:"score"`
	SentimentScore float64 `json:"sentimentScore"`
	EventCount     int     `json:"eventCount"`
}

type MonthTrend struct {
	Month    string       `json:"month"`
	MonthKey string       `json:"monthKey"`
	Groups   []TrendGroup `json:"groups"`
}

func (s *DashboardService) GetStatusStats() (*StatusStats, error) {
	var cars []models.Car
	if err := s.db.Select("id", "event_type", "due_date", "completion_date").Find(&cars).Error; err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	stats := &StatusStats{Total: len(cars)}
	for i := range cars {
		cars[i].FillStatus(now)
		switch cars[i].Status {
		case scoring.StatusClosed:
			stats.Closed++
		case scoring.StatusDelayed:
			stats.Delayed++
		default:
			stats.InProgress++
		}
	}
	return stats, nil
}

// GetAccumulatedScores sums, per group, the scores of CARs whose active
// window covers year/month. Zero year or month means the current one.
func (s *DashboardService) GetAccumulatedScores(groupType string, year, month int, filter *CarListRequest) ([]GroupScore, error) {
	if err := validateGroupType(groupType); err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return nil, response.NewBadRequest(fmt.Sprintf("invalid month %d", month))
	}
	cars, err := s.loadCars(filter)
	if err != nil {
		return nil, err
	}

	stats := s.aggregate(cars, groupType, monthIndex(year, time.Month(month)), nil)
	out := make([]GroupScore, 0, len(stats))
	for _, g := range stats {
		out = append(out, GroupScore{
			Name:             g.name,
			AccumulatedScore: round2(g.score),
			SentimentScore:   g.avgSentiment(),
			EventCount:       g.events,
		})
	}
	return out, nil
}

// GetMonthlyTrend returns the top groups for each of the last months
// months, oldest first.
func (s *DashboardService) GetMonthlyTrend(groupType string, months int, filter *CarListRequest) ([]MonthTrend, error) {
	if err := validateGroupType(groupType); err != nil {
		return nil, err
	}
	if months <= 0 {
		months = 6
	}
	if months > 36 {
		months = 36
	}
	cars, err := s.loadCars(filter)
	if err != nil {
		return nil, err
	}
	seed, err := s.allGroupNames(groupType, cars)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	current := monthIndex(now.Year(), now.Month())
	trend := make([]MonthTrend, 0, months)
	for idx := current - months + 1; idx <= current; idx++ {
		year, month := idx/12, time.Month(idx%12+1)
		stats := s.aggregate(cars, groupType, idx, seed)

		groups := make([]TrendGroup, 0, trendTopGroups)
		for _, g := range stats {
			if g.score == 0 && g.events == 0 {
				continue
			}
			groups = append(groups, TrendGroup{
				Name:           g.name,
				Score:          round2(g.score),
				SentimentScore: g.avgSentiment(),
				EventCount:     g.events,
			})
			if len(groups) == trendTopGroups {
				break
			}
		}
		trend = append(trend, MonthTrend{
			Month:    fmt.Sprintf("%d월", int(month)),
			MonthKey: fmt.Sprintf("%04d-%02d", year, int(month)),
			Groups:   groups,
		})
	}
	return trend, nil
}

type groupAccumulator struct {
	name           string
	score          float64
	sentimentSum   float64
	sentimentCount int
	events         int
}

func (g *groupAccumulator) avgSentiment() float64 {
	if g.sentimentCount == 0 {
		return 0
	}
	return round2(g.sentimentSum / float64(g.sentimentCount))
}

// aggregate returns groups sorted by accumulated score, highest first.
// seed lists groups that appear even without CARs.
func (s *DashboardService) aggregate(cars []models.Car, groupType string, target int, seed []string) []*groupAccumulator {
	groups := make(map[string]*groupAccumulator)
	var order []string
	get := func(name string) *groupAccumulator {
		g, ok := groups[name]
		if !ok {
			g = &groupAccumulator{name: name}
			groups[name] = g
			order = append(order, name)
		}
		return g
	}
	for _, name := range seed {
		get(name)
	}

	for i := range cars {
		car := &cars[i]
		contribution := s.contribution(car, target)
		for _, key := range groupKeys(car, groupType) {
			g := get(key)
			g.score += contribution
			if car.SentimentScore != nil && *car.SentimentScore > 0 {
				g.sentimentSum += *car.SentimentScore
				g.sentimentCount++
			}
			if contribution > 0 {
				g.events++
			}
		}
	}

	out := make([]*groupAccumulator, 0, len(order))
	for _, name := range order {
		out = append(out, groups[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// contribution is car's score when target month falls inside its active
// window: six months from issue for ONE_TIME, twelve months from completion
// for CONTINUOUS.
func (s *DashboardService) contribution(car *models.Car, target int) float64 {
	var startMs int64
	var duration int
	switch scoring.EventType(car.EventType) {
	case scoring.EventOneTime:
		startMs, duration = car.IssueDate, oneTimeWindowMonths
	case scoring.EventContinuous:
		if car.IsOpen() {
			return 0
		}
		startMs, duration = *car.CompletionDate, continuousWindowMonths
	default:
		return 0
	}
	if startMs == 0 {
		return 0
	}
	start := time.UnixMilli(startMs).In(s.loc)
	first := monthIndex(start.Year(), start.Month())
	if target < first || target >= first+duration {
		return 0
	}
	return car.Score
}

func groupKeys(car *models.Car, groupType string) []string {
	var keys []string
	switch groupType {
	case GroupTypeCompany:
		if car.Corporation != "" {
			keys = append(keys, car.Corporation)
		}
	case GroupTypeCustomer:
		for _, c := range car.CustomerContacts {
			if c.Group != "" {
				keys = append(keys, c.Group)
			}
		}
	case GroupTypeManager:
		for _, c := range car.CustomerContacts {
			if c.Name != "" {
				keys = append(keys, c.Name)
			}
		}
	}
	if len(keys) == 0 {
		return []string{unknownGroup}
	}
	return keys
}

func (s *DashboardService) allGroupNames(groupType string, cars []models.Car) ([]string, error) {
	var names []string
	switch groupType {
	case GroupTypeCustomer:
		if err := s.db.Model(&models.CustomerContact{}).Where("group_name <> ?", "").
			Distinct("group_name").Order("group_name").Pluck("group_name", &names).Error; err != nil {
			return nil, err
		}
	case GroupTypeManager:
		if err := s.db.Model(&models.CustomerContact{}).Where("name <> ?", "").
			Distinct("name").Order("name").Pluck("name", &names).Error; err != nil {
			return nil, err
		}
	case GroupTypeCompany:
		seen := map[string]bool{}
		for i := range cars {
			key := groupKeys(&cars[i], GroupTypeCompany)[0]
			if !seen[key] {
				seen[key] = true
				names = append(names, key)
			}
		}
	}
	return names, nil
}

func (s *DashboardService) loadCars(filter *CarListRequest) ([]models.Car, error) {
	if filter == nil {
		filter = &CarListRequest{}
	}
	var cars []models.Car
	query := applyCarFilters(s.db.Model(&models.Car{}), filter).Preload("CustomerContacts").Order("id")
	if err := query.Find(&cars).Error; err != nil {
		return nil, err
	}

	status := scoring.Status(filter.Status)
	if status == "" || status == "전체" {
		return cars, nil
	}
	now := s.now().In(s.loc)
	matched := cars[:0]
	for _, car := range cars {
		car.FillStatus(now)
		if car.Status == status {
			matched = append(matched, car)
		}
	}
	return matched, nil
}

func validateGroupType(groupType string) error {
	switch groupType {
	case GroupTypeCompany, GroupTypeCustomer, GroupTypeManager:
		return nil
	}
	return response.NewBadRequest(fmt.Sprintf("invalid groupType %q", groupType))
}

func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
