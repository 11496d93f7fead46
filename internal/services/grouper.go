package services

import (
	"time"

	"github.com/comadj/car-system/internal/models"
)

// UnassignedGroup collects CARs without a customer group.
const UnassignedGroup = "고객사 미지정"

// recentWindow bounds RecentOrOpen; it is independent of the evidence
// windows.
const recentWindow = 30 * 24 * time.Hour

type CustomerBucket struct {
	Name         string
	AllHistory   []models.Car
	RecentOrOpen []models.Car
	OpenOnly     []models.Car
}

// GroupByCustomer partitions cars by the group of their first contact.
// Buckets come back in first-seen order.
func GroupByCustomer(cars []models.Car, now time.Time) []CustomerBucket {
	var buckets []CustomerBucket
	index := make(map[string]int)
	cutoff := now.Add(-recentWindow)

	for _, car := range cars {
		name := car.PrimaryGroup()
		if name == "" {
			name = UnassignedGroup
		}
		pos, ok := index[name]
		if !ok {
			pos = len(buckets)
			index[name] = pos
			buckets = append(buckets, CustomerBucket{Name: name})
		}
		b := &buckets[pos]

		b.AllHistory = append(b.AllHistory, car)
		if car.IsOpen() || !car.CreatedAt.Before(cutoff) {
			b.RecentOrOpen = append(b.RecentOrOpen, car)
		}
		if car.IsOpen() {
			b.OpenOnly = append(b.OpenOnly, car)
		}
	}
	return buckets
}

// Issues returns RecentOrOpen and OpenOnly merged and de-duplicated by id,
// shaped for the AI prompts.
func (b *CustomerBucket) Issues() []models.ReportIssue {
	seen := make(map[uint]bool)
	var issues []models.ReportIssue
	for _, list := range [][]models.Car{b.RecentOrOpen, b.OpenOnly} {
		for _, car := range list {
			if seen[car.ID] {
				continue
			}
			seen[car.ID] = true
			issues = append(issues, issueFromCar(&car, "이슈 제목 없음", "조치 계획 없음"))
		}
	}
	return issues
}

func issueFromCar(car *models.Car, noTitle, noPlan string) models.ReportIssue {
	issue := models.ReportIssue{Title: car.OpenIssue, Plan: car.FollowUpPlan, Score: car.Score}
	if !isFinite(issue.Score) {
		issue.Score = 0
	}
	if issue.Title == "" {
		issue.Title = noTitle
	}
	if issue.Plan == "" {
		issue.Plan = noPlan
	}
	return issue
}
