package services

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/comadj/car-system/internal/models"
)

var evidenceNow = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

func daysAgoMs(days int) *int64 {
	v := evidenceNow.AddDate(0, 0, -days).UnixMilli()
	return &v
}

func TestBuildEvidence_Empty(t *testing.T) {
	if got := BuildEvidence(nil, evidenceNow); got != "분석할 이력이 없습니다." {
		t.Errorf("BuildEvidence(nil) = %q", got)
	}
}

func TestBuildEvidence(t *testing.T) {
	old := evidenceNow.AddDate(0, -3, 0)
	cars := []models.Car{
		{ID: 1, OpenIssue: "납기 지연", Score: 5, CreatedAt: evidenceNow.AddDate(0, 0, -2)},
		{ID: 2, OpenIssue: "품질 불량", Score: 4, CreatedAt: evidenceNow.AddDate(0, 0, -5), DueDate: daysAgoMs(45)},
		{ID: 3, OpenIssue: "납기 지연", Score: -5, CreatedAt: old, CompletionDate: daysAgoMs(60), DueDate: daysAgoMs(70)},
		{ID: 4, OpenIssue: "", Score: 0, CreatedAt: old, DueDate: daysAgoMs(31)},
		{ID: 5, OpenIssue: "포장 파손", Score: 1, CreatedAt: old, DueDate: daysAgoMs(10)},
	}

	expected := "전체 이력 5건 분석 결과:\n" +
		"- 반복 이슈: 납기 지연(2회), 품질 불량(1회), 기타(1회)\n" +
		"- 장기 미해결: 품질 불량, 기타\n" +
		"- 최근 트렌드: 최근 이슈 심각도 증가 (평균 점수: 4.5)"
	if got := BuildEvidence(cars, evidenceNow); got != expected {
		t.Errorf("BuildEvidence() =\n%s\nexpected\n%s", got, expected)
	}
}

func TestBuildEvidence_StableTrendAndNoUnresolved(t *testing.T) {
	cars := []models.Car{
		{ID: 1, OpenIssue: "문의", Score: 2, CreatedAt: evidenceNow.AddDate(0, 0, -1)},
		{ID: 2, OpenIssue: "문의", Score: 3, CreatedAt: evidenceNow.AddDate(0, 0, -3), DueDate: daysAgoMs(30)},
	}
	got := BuildEvidence(cars, evidenceNow)
	if !strings.Contains(got, "- 장기 미해결: 없음") {
		t.Errorf("exactly 30 days overdue should not count, got %q", got)
	}
	if !strings.Contains(got, "최근 이슈 안정적 관리 (평균 점수: 2.5)") {
		t.Errorf("unexpected trend line in %q", got)
	}
}

func TestBuildEvidence_UnresolvedCappedAtThree(t *testing.T) {
	var cars []models.Car
	for i, issue := range []string{"a", "b", "c", "d"} {
		cars = append(cars, models.Car{ID: uint(i + 1), OpenIssue: issue, DueDate: daysAgoMs(40)})
	}
	got := BuildEvidence(cars, evidenceNow)
	if !strings.Contains(got, "- 장기 미해결: a, b, c\n") {
		t.Errorf("BuildEvidence() = %q, expected three unresolved entries", got)
	}
	if !strings.Contains(got, "(평균 점수: 0.0)") {
		t.Errorf("records without a creation time should not enter the trend, got %q", got)
	}
}

func TestAverageSentiment(t *testing.T) {
	if got := AverageSentiment([]models.Car{{}}); got != nil {
		t.Errorf("AverageSentiment(no values) = %v, expected nil", *got)
	}
	cars := []models.Car{
		{SentimentScore: ptrTo(60.0)},
		{SentimentScore: nil},
		{SentimentScore: ptrTo(65.15)},
	}
	got := AverageSentiment(cars)
	if got == nil || *got != 62.6 {
		t.Errorf("AverageSentiment() = %v, expected 62.6", got)
	}
}

func TestScoreSum(t *testing.T) {
	cars := []models.Car{{Score: 3}, {Score: -1.5}, {Score: 0}}
	if got := ScoreSum(cars); got != 1.5 {
		t.Errorf("ScoreSum() = %v, expected 1.5", got)
	}
}

func TestReportNumbersSkipNonFiniteRows(t *testing.T) {
	cars := []models.Car{
		{Score: 2, SentimentScore: ptrTo(40.0)},
		{Score: math.Inf(1), SentimentScore: ptrTo(math.NaN())},
		{Score: math.NaN()},
	}
	if got := ScoreSum(cars); got != 2 {
		t.Errorf("ScoreSum() = %v, expected 2", got)
	}
	if got := AverageSentiment(cars); got == nil || *got != 40 {
		t.Errorf("AverageSentiment() = %v, expected 40", got)
	}
	if got := ScoreSum([]models.Car{{Score: math.MaxFloat64}, {Score: math.MaxFloat64}}); got != 0 {
		t.Errorf("ScoreSum(overflow) = %v, expected 0", got)
	}
	issue := issueFromCar(&models.Car{OpenIssue: "x", Score: math.Inf(-1)}, "", "")
	if issue.Score != 0 {
		t.Errorf("issue score = %v, expected 0", issue.Score)
	}
}
