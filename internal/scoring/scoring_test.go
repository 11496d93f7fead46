package scoring

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

func ms(t time.Time) int64 { return t.UnixMilli() }

func i64(v int64) *int64 { return &v }

func f64(v float64) *float64 { return &v }

func TestToEpochMillis(t *testing.T) {
	jan15 := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"empty string", "", 0, false},
		{"dash", "-", 0, false},
		{"int64", int64(1700000000000), 1700000000000, true},
		{"float64", float64(1700000000000), 1700000000000, true},
		{"json number", json.Number("1700000000000"), 1700000000000, true},
		{"numeric string", "1700000000000", 1700000000000, true},
		{"plain date is utc midnight", "2026-01-15", jan15, true},
		{"slash date", "2026/01/15", jan15, true},
		{"iso datetime", "2026-01-15T00:00:00Z", jan15, true},
		{"iso with offset", "2026-01-15T09:00:00+09:00", jan15, true},
		{"time value", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), jan15, true},
		{"nil pointer", (*int64)(nil), 0, false},
		{"garbage", "next tuesday", 0, false},
		{"nan", math.NaN(), 0, false},
		{"infinity", math.Inf(1), 0, false},
		{"beyond int64", 1e30, 0, false},
		{"below int64", -1e30, 0, false},
		{"huge numeric string", "1e30", 0, false},
		{"unsupported type", []int{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToEpochMillis(tt.in)
			if ok != tt.ok {
				t.Fatalf("ToEpochMillis(%v) ok = %v, expected %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ToEpochMillis(%v) = %d, expected %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompletionPtr(t *testing.T) {
	if CompletionPtr(0) != nil {
		t.Error("CompletionPtr(0) should be nil")
	}
	if CompletionPtr("-") != nil {
		t.Error(`CompletionPtr("-") should be nil`)
	}
	if p := CompletionPtr("2026-01-15"); p == nil {
		t.Error("CompletionPtr(date) should not be nil")
	}
}

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, kst)
	yesterday := ms(now.AddDate(0, 0, -1))
	laterToday := ms(time.Date(2026, 3, 10, 23, 0, 0, 0, kst))
	earlierToday := ms(time.Date(2026, 3, 10, 0, 30, 0, 0, kst))
	tomorrow := ms(now.AddDate(0, 0, 1))

	tests := []struct {
		name       string
		eventType  string
		due        any
		completion any
		want       Status
	}{
		{"one time is always closed", "ONE_TIME", yesterday, nil, StatusClosed},
		{"one time ignores completion", "ONE_TIME", nil, "", StatusClosed},
		{"continuous completed", "CONTINUOUS", yesterday, tomorrow, StatusClosed},
		{"continuous completed as date string", "CONTINUOUS", nil, "2026-03-01", StatusClosed},
		{"continuous overdue", "CONTINUOUS", yesterday, nil, StatusDelayed},
		{"due earlier today is not overdue", "CONTINUOUS", earlierToday, nil, StatusInProgress},
		{"due later today is not overdue", "CONTINUOUS", laterToday, nil, StatusInProgress},
		{"due tomorrow", "CONTINUOUS", tomorrow, nil, StatusInProgress},
		{"no due date", "CONTINUOUS", nil, nil, StatusInProgress},
		{"completion dash is absent", "CONTINUOUS", yesterday, "-", StatusDelayed},
		{"completion zero is absent", "CONTINUOUS", yesterday, 0, StatusDelayed},
		{"numeric string due", "CONTINUOUS", "1000", nil, StatusDelayed},
		{"iso string due", "CONTINUOUS", "2026-03-09", nil, StatusDelayed},
		{"unparseable due falls back", "CONTINUOUS", "soon", nil, StatusInProgress},
		{"unknown event type", "OTHER", yesterday, nil, StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.eventType, tt.due, tt.completion, now); got != tt.want {
				t.Errorf("DeriveStatus() = %s, expected %s", got, tt.want)
			}
		})
	}
}

func TestDateScore(t *testing.T) {
	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		days float64
		want int
	}{
		{"early", -3, 5},
		{"same day", 0, 5},
		{"half day late floors to zero", 0.5, 5},
		{"one day", 1, 3},
		{"two days", 2, 2},
		{"three days", 3, 2},
		{"four days", 4, 0},
		{"seven days", 7, 0},
		{"eight days", 8, -3},
		{"thirty days", 30, -3},
		{"thirty one days", 31, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion := due.Add(time.Duration(tt.days * float64(24*time.Hour)))
			if got := DateScore(i64(ms(due)), i64(ms(completion))); got != tt.want {
				t.Errorf("DateScore(+%v days) = %d, expected %d", tt.days, got, tt.want)
			}
		})
	}

	if got := DateScore(nil, i64(ms(due))); got != 0 {
		t.Errorf("DateScore(nil due) = %d, expected 0", got)
	}
	if got := DateScore(i64(ms(due)), nil); got != 0 {
		t.Errorf("DateScore(nil completion) = %d, expected 0", got)
	}
}

func TestScore(t *testing.T) {
	due := ms(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	onTime := due

	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"one time subjective", Input{EventType: "ONE_TIME", SubjectiveScore: f64(7)}, 7},
		{"one time without subjective", Input{EventType: "ONE_TIME"}, 0},
		{"continuous open", Input{EventType: "CONTINUOUS", DueDate: i64(due), InternalScore: f64(3)}, 0},
		{"continuous default importance", Input{EventType: "CONTINUOUS", DueDate: i64(due), CompletionDate: i64(onTime), InternalScore: f64(2), CustomerScore: f64(1)}, 8},
		{"continuous weighted", Input{EventType: "CONTINUOUS", DueDate: i64(due), CompletionDate: i64(onTime), InternalScore: f64(2), CustomerScore: f64(1), Importance: f64(0.5)}, 4},
		{"explicit zero importance", Input{EventType: "CONTINUOUS", DueDate: i64(due), CompletionDate: i64(onTime), Importance: f64(0)}, 0},
		{"unknown type", Input{EventType: "X", SubjectiveScore: f64(9)}, 0},
		{"nan subjective", Input{EventType: "ONE_TIME", SubjectiveScore: f64(math.NaN())}, 0},
		{"infinite internal", Input{EventType: "CONTINUOUS", DueDate: i64(due), CompletionDate: i64(onTime), InternalScore: f64(math.Inf(1))}, 5},
		{"infinite importance", Input{EventType: "CONTINUOUS", DueDate: i64(due), CompletionDate: i64(onTime), Importance: f64(math.Inf(-1))}, 5},
		{"overflowing product", Input{EventType: "CONTINUOUS", DueDate: i64(due), CompletionDate: i64(onTime), InternalScore: f64(math.MaxFloat64), Importance: f64(math.MaxFloat64)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.in); got != tt.want {
				t.Errorf("Score() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestSentimentScore(t *testing.T) {
	if got := SentimentScore(Input{EventType: "ONE_TIME"}, 5); got != nil {
		t.Errorf("SentimentScore(no text) = %v, expected nil", *got)
	}

	in := Input{EventType: "ONE_TIME", OpenIssue: "고객 만족", FollowUpPlan: "문제 해결"}
	got := SentimentScore(in, 0)
	if got == nil {
		t.Fatal("SentimentScore() returned nil")
	}
	// pos = 만족, 해결 (2); neg = 문제 (1) => 75
	want := 0.4*75 + 0.3*50 + 0 + 0.1*50
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("SentimentScore() = %v, expected %v", *got, want)
	}
}

func TestSentimentScore_Bounds(t *testing.T) {
	due := ms(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	late := ms(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	inputs := []struct {
		in    Input
		score float64
	}{
		{Input{EventType: "ONE_TIME", OpenIssue: "불만 지연 실패 문제 오류 불편"}, -1000},
		{Input{EventType: "ONE_TIME", OpenIssue: "만족 해결 완료 성공 감사", Importance: f64(5)}, 1000},
		{Input{EventType: "CONTINUOUS", OpenIssue: "x", DueDate: i64(due), CompletionDate: i64(late), Importance: f64(-3)}, -50},
	}

	for i, tt := range inputs {
		got := SentimentScore(tt.in, tt.score)
		if got == nil {
			t.Fatalf("case %d: SentimentScore() returned nil", i)
		}
		if *got < 0 || *got > 100 {
			t.Errorf("case %d: SentimentScore() = %v, expected within [0, 100]", i, *got)
		}
	}
}

func TestLexicalSentiment(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"일반 문의", 50},
		{"친절 감사", 100},
		{"만족 만족 만족", 75},
		{"불만 지연 실패", 0},
	}
	for _, tt := range tests {
		if got := LexicalSentiment(tt.text); got != tt.want {
			t.Errorf("LexicalSentiment(%q) = %v, expected %v", tt.text, got, tt.want)
		}
	}
}

func TestCompute(t *testing.T) {
	in := Input{EventType: "ONE_TIME", SubjectiveScore: f64(4), OpenIssue: "개선 요청"}
	score, sentiment := Compute(in)
	if score != 4 {
		t.Errorf("score = %v, expected 4", score)
	}
	if sentiment == nil {
		t.Fatal("sentiment should not be nil when text is present")
	}
	if want := SentimentScore(in, 4); *want != *sentiment {
		t.Errorf("sentiment = %v, expected %v", *sentiment, *want)
	}
}

func TestCompute_NonFiniteInputs(t *testing.T) {
	in := Input{
		EventType:       "ONE_TIME",
		SubjectiveScore: f64(math.Inf(1)),
		Importance:      f64(math.NaN()),
		OpenIssue:       "불만 접수",
	}
	score, sentiment := Compute(in)
	if score != 0 {
		t.Errorf("score = %v, expected 0", score)
	}
	if sentiment == nil || math.IsNaN(*sentiment) || math.IsInf(*sentiment, 0) {
		t.Fatalf("sentiment = %v, expected a finite value", sentiment)
	}
	if *sentiment < 0 || *sentiment > 100 {
		t.Errorf("sentiment = %v, expected within [0, 100]", *sentiment)
	}
}

func TestWordListSizes(t *testing.T) {
	if len(PositiveWords) != 40 {
		t.Errorf("len(PositiveWords) = %d, expected 40", len(PositiveWords))
	}
	if len(NegativeWords) != 42 {
		t.Errorf("len(NegativeWords) = %d, expected 42", len(NegativeWords))
	}
}
