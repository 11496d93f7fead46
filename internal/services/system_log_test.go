package services

import (
	"testing"
	"time"

	"github.com/comadj/car-system/internal/models"
)

func TestSystemLogService_ListAndCleanup(t *testing.T) {
	db := newTestDB(t)
	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	LogInfo("WeeklyReport", "generate", "report 1 saved", nil, "", "", map[string]int{"report_id": 1})
	LogError("WeeklyReport", "generate", "report failed", nil, "", "", nil)
	LogWarning("Scheduler", "skip", "holiday", nil, "", "", nil)

	old := models.SystemLog{Level: "info", Module: "Auth", Action: "login", CreatedAt: time.Now().AddDate(0, 0, -200)}
	db.Create(&old)

	svc := NewSystemLogService(db)

	resp, err := svc.List(&SystemLogListRequest{Module: "WeeklyReport"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("Total = %d, expected 2", resp.Total)
	}
	if resp.Page != 1 || resp.PageSize != 20 {
		t.Errorf("page = %d/%d, expected 1/20", resp.Page, resp.PageSize)
	}

	resp, _ = svc.List(&SystemLogListRequest{Level: "error"})
	if resp.Total != 1 || resp.Items[0].Message != "report failed" {
		t.Errorf("error filter returned %+v", resp.Items)
	}

	modules, err := svc.GetModules()
	if err != nil {
		t.Fatalf("GetModules() error = %v", err)
	}
	if len(modules) != 3 {
		t.Errorf("GetModules() = %v, expected 3 modules", modules)
	}

	deleted, err := svc.CleanupOldLogs(90)
	if err != nil {
		t.Fatalf("CleanupOldLogs() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("CleanupOldLogs() deleted %d, expected 1", deleted)
	}
	if n, _ := svc.CleanupOldLogs(0); n != 0 {
		t.Errorf("CleanupOldLogs(0) = %d, expected 0", n)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size, def int
		wantPage        int
		wantSize        int
	}{
		{0, 0, 10, 1, 10},
		{3, 25, 10, 3, 25},
		{-1, 500, 10, 1, 100},
	}
	for _, tt := range tests {
		p, s := normalizePage(tt.page, tt.size, tt.def)
		if p != tt.wantPage || s != tt.wantSize {
			t.Errorf("normalizePage(%d, %d) = %d, %d, expected %d, %d", tt.page, tt.size, p, s, tt.wantPage, tt.wantSize)
		}
	}
}
