package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/comadj/car-system/internal/models"
)

const (
	// LongUnresolvedThreshold is how far past its due date an open CAR must
	// be to count as long unresolved.
	LongUnresolvedThreshold = 30 * 24 * time.Hour
	// RecentTrendWindow is the creation window the trend average covers.
	RecentTrendWindow = 30 * 24 * time.Hour

	severityTrendThreshold = 3.0
	noHistoryEvidence      = "분석할 이력이 없습니다."
	otherIssueKey          = "기타"
)

// BuildEvidence digests a customer's full CAR history into the short text
// block both AI prompts start from.
func BuildEvidence(cars []models.Car, now time.Time) string {
	if len(cars) == 0 {
		return noHistoryEvidence
	}

	type frequency struct {
		issue string
		count int
	}
	var freq []frequency
	index := make(map[string]int)
	var unresolved []string

	var recentSum float64
	recentCount := 0
	nowMs := now.UnixMilli()

	for i := range cars {
		car := &cars[i]
		issue := car.OpenIssue
		if issue == "" {
			issue = otherIssueKey
		}
		if pos, ok := index[issue]; ok {
			freq[pos].count++
		} else {
			index[issue] = len(freq)
			freq = append(freq, frequency{issue: issue, count: 1})
		}

		if car.IsOpen() && car.DueDate != nil && *car.DueDate != 0 {
			overdueDays := math.Floor(float64(nowMs-*car.DueDate) / float64(24*time.Hour/time.Millisecond))
			if overdueDays > LongUnresolvedThreshold.Hours()/24 {
				unresolved = append(unresolved, issue)
			}
		}

		if !car.CreatedAt.IsZero() && !car.CreatedAt.Before(now.Add(-RecentTrendWindow)) {
			recentSum += car.Score
			recentCount++
		}
	}

	sort.SliceStable(freq, func(i, j int) bool { return freq[i].count > freq[j].count })
	repeated := make([]string, 0, 3)
	for i := 0; i < len(freq) && i < 3; i++ {
		repeated = append(repeated, fmt.Sprintf("%s(%d회)", freq[i].issue, freq[i].count))
	}

	unresolvedText := "없음"
	if len(unresolved) > 0 {
		if len(unresolved) > 3 {
			unresolved = unresolved[:3]
		}
		unresolvedText = strings.Join(unresolved, ", ")
	}

	var avgRecent float64
	if recentCount > 0 {
		avgRecent = recentSum / float64(recentCount)
	}
	trend := "최근 이슈 안정적 관리"
	if avgRecent > severityTrendThreshold {
		trend = "최근 이슈 심각도 증가"
	}

	return fmt.Sprintf("전체 이력 %d건 분석 결과:\n- 반복 이슈: %s\n- 장기 미해결: %s\n- 최근 트렌드: %s (평균 점수: %.1f)",
		len(cars), strings.Join(repeated, ", "), unresolvedText, trend, avgRecent)
}

// AverageSentiment is the mean of the non-null sentiment scores rounded to
// one decimal, or nil when no record has one.
func AverageSentiment(cars []models.Car) *float64 {
	var sum float64
	n := 0
	for i := range cars {
		if v := cars[i].SentimentScore; v != nil && isFinite(*v) {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.Round(sum/float64(n)*10) / 10
	return &avg
}

// ScoreSum adds the finite scores of cars. Rows stored with NaN or an
// infinity are skipped so one bad row cannot poison the report.
func ScoreSum(cars []models.Car) float64 {
	var sum float64
	for i := range cars {
		if isFinite(cars[i].Score) {
			sum += cars[i].Score
		}
	}
	if !isFinite(sum) {
		return 0
	}
	return sum
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
