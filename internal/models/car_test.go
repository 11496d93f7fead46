package models

import (
	"testing"
	"time"

	"github.com/comadj/car-system/internal/scoring"
)

func ptr[T any](v T) *T { return &v }

func TestCar_Rescore(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	car := Car{
		EventType:      "CONTINUOUS",
		DueDate:        &due,
		CompletionDate: ptr(due + 2*24*60*60*1000),
		InternalScore:  ptr(1.0),
		CustomerScore:  ptr(1.0),
		OpenIssue:      "납기 지연",
	}

	car.Rescore()

	if car.Score != 4 {
		t.Errorf("Score = %v, expected 4", car.Score)
	}
	if car.SentimentScore == nil {
		t.Fatal("SentimentScore should be set when text is present")
	}
}

func TestCar_FillStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -3).UnixMilli()

	tests := []struct {
		name string
		car  Car
		want scoring.Status
	}{
		{"one time", Car{EventType: "ONE_TIME"}, scoring.StatusClosed},
		{"overdue", Car{EventType: "CONTINUOUS", DueDate: &past}, scoring.StatusDelayed},
		{"completed", Car{EventType: "CONTINUOUS", DueDate: &past, CompletionDate: &past}, scoring.StatusClosed},
		{"zero completion is open", Car{EventType: "CONTINUOUS", DueDate: &past, CompletionDate: ptr(int64(0))}, scoring.StatusDelayed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.car.FillStatus(now)
			if tt.car.Status != tt.want {
				t.Errorf("Status = %s, expected %s", tt.car.Status, tt.want)
			}
		})
	}
}

func TestCar_PrimaryGroup(t *testing.T) {
	car := Car{CustomerContacts: []CustomerContact{{Group: "Acme"}, {Group: "Globex"}}}
	if got := car.PrimaryGroup(); got != "Acme" {
		t.Errorf("PrimaryGroup() = %q, expected Acme", got)
	}
	if got := (&Car{}).PrimaryGroup(); got != "" {
		t.Errorf("PrimaryGroup() = %q, expected empty", got)
	}
}

func TestWeeklyReport_Customers(t *testing.T) {
	var r WeeklyReport
	blocks := map[string]CustomerReport{
		"Acme": {Evidence: "e", TopIssues: []ReportIssue{{Title: "t", Score: 3}}},
	}
	if err := r.SetCustomers(blocks); err != nil {
		t.Fatalf("SetCustomers() error = %v", err)
	}
	got, err := r.Customers()
	if err != nil {
		t.Fatalf("Customers() error = %v", err)
	}
	if got["Acme"].TopIssues[0].Score != 3 {
		t.Errorf("decoded score = %v, expected 3", got["Acme"].TopIssues[0].Score)
	}

	empty := WeeklyReport{}
	if got, err := empty.Customers(); err != nil || len(got) != 0 {
		t.Errorf("Customers() on empty data = %v, %v", got, err)
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleManager, RoleStaff} {
		if !ValidRole(r) {
			t.Errorf("ValidRole(%q) = false, expected true", r)
		}
	}
	if ValidRole("admin") {
		t.Error(`ValidRole("admin") should be false`)
	}
}
