package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/models"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeSender struct {
	sent   []sentMail
	failTo map[string]bool
}

func (f *fakeSender) Send(cfg *EmailConfig, from string, to []string, subject, body string) error {
	if f.failTo[to[0]] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func newTestEmailService(t *testing.T) (*EmailService, *fakeSender) {
	t.Helper()
	db := newTestDB(t)
	svc := NewEmailService(db, config.DefaultConfig().Mail)
	sender := &fakeSender{failTo: map[string]bool{}}
	svc.SetSender(sender)
	if err := svc.UpdateConfig(&UpdateEmailConfigRequest{
		Enabled: ptrTo(true),
		Host:    ptrTo("smtp.example.com"),
		From:    ptrTo("car@example.com"),
	}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	return svc, sender
}

func createUser(t *testing.T, svc *EmailService, username, email, role string, weekly, active bool) {
	t.Helper()
	user := models.User{Username: username, Email: email, Role: role, WeeklyReportEmail: weekly}
	if err := svc.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !active {
		svc.db.Model(&user).Update("is_active", false)
	}
}

func sampleWeeklyReport(t *testing.T) *models.WeeklyReport {
	t.Helper()
	avg := 4.2
	report := &models.WeeklyReport{
		ID:        7,
		Title:     "주간 요약 보고서_AI분석_260316-01",
		WeekStart: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
	}
	err := report.SetCustomers(map[string]models.CustomerReport{
		"Acme": {
			Summary:          models.ReportSummary{TotalEvents: 3, AvgSentiment: &avg, ScoreSum: 9.5},
			TopIssues:        []models.ReportIssue{{Title: "Late <delivery>", Plan: "Expedite", Score: 4.5}},
			AIRecommendation: "[전략명]: 신뢰 회복\n[조치]: 주간 점검",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return report
}

func TestEmailService_ConfigRoundTrip(t *testing.T) {
	svc, _ := newTestEmailService(t)
	if err := svc.UpdateConfig(&UpdateEmailConfigRequest{Port: ptrTo(465), Password: ptrTo("secret"), UseTLS: ptrTo(true)}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	// empty password keeps the stored one
	if err := svc.UpdateConfig(&UpdateEmailConfigRequest{Password: ptrTo("")}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	cfg := svc.GetConfig()
	if !cfg.Enabled || cfg.Host != "smtp.example.com" || cfg.Port != 465 || !cfg.UseTLS {
		t.Errorf("GetConfig() = %+v", cfg)
	}
	if cfg.Password != "secret" {
		t.Errorf("Password = %q, expected secret", cfg.Password)
	}

	if err := svc.UpdateConfig(&UpdateEmailConfigRequest{Port: ptrTo(70000)}); err == nil {
		t.Error("expected error for invalid port")
	}
	if err := svc.UpdateConfig(&UpdateEmailConfigRequest{From: ptrTo("not an address")}); err == nil {
		t.Error("expected error for invalid sender")
	}
}

func TestEmailService_SendWeeklyReport(t *testing.T) {
	svc, sender := newTestEmailService(t)
	createUser(t, svc, "kim", "kim@example.com", models.RoleStaff, true, true)
	createUser(t, svc, "lee", "lee@example.com", models.RoleManager, true, true)
	createUser(t, svc, "park", "park@example.com", models.RoleStaff, false, true)
	createUser(t, svc, "choi", "choi@example.com", models.RoleStaff, true, false)
	createUser(t, svc, "noemail", "", models.RoleStaff, true, true)
	sender.failTo["lee@example.com"] = true

	result, err := svc.SendWeeklyReport(context.Background(), sampleWeeklyReport(t))
	if err != nil {
		t.Fatalf("SendWeeklyReport() error = %v", err)
	}
	if result.RecipientCount != 2 || result.SuccessCount != 1 || result.FailCount != 1 {
		t.Errorf("result = %+v, expected 2 recipients with 1 success and 1 failure", result)
	}
	if result.Message != "이메일 발송 완료 (성공: 1, 실패: 1)" {
		t.Errorf("Message = %q", result.Message)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d mails, expected 1", len(sender.sent))
	}
	mail := sender.sent[0]
	if mail.subject != "[삼송 CAR 시스템] 주간 요약 보고서_AI분석_260316-01 - 2026-03-16" {
		t.Errorf("subject = %q", mail.subject)
	}
	for _, want := range []string{"Acme", "4.2점", "Late &lt;delivery&gt;", "신뢰 회복<br>[조치]"} {
		if !strings.Contains(mail.body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestEmailService_SendWeeklyReportNoRecipients(t *testing.T) {
	svc, sender := newTestEmailService(t)
	result, err := svc.SendWeeklyReport(context.Background(), sampleWeeklyReport(t))
	if err != nil {
		t.Fatalf("SendWeeklyReport() error = %v", err)
	}
	if result.RecipientCount != 0 || result.Message != "수신 대상자 없음" {
		t.Errorf("result = %+v", result)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d mails, expected none", len(sender.sent))
	}
}

func TestEmailService_Disabled(t *testing.T) {
	svc, sender := newTestEmailService(t)
	createUser(t, svc, "kim", "kim@example.com", models.RoleAdmin, true, true)
	if err := svc.UpdateConfig(&UpdateEmailConfigRequest{Enabled: ptrTo(false)}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.SendWeeklyReport(context.Background(), sampleWeeklyReport(t))
	if err != nil {
		t.Fatalf("SendWeeklyReport() error = %v", err)
	}
	if result.Success {
		t.Error("expected Success = false when email is disabled")
	}
	svc.NotifyAdminsOfFailure(context.Background(), errors.New("boom"))
	if len(sender.sent) != 0 {
		t.Errorf("sent %d mails, expected none", len(sender.sent))
	}
}

func TestEmailService_NotifyAdminsOfFailure(t *testing.T) {
	svc, sender := newTestEmailService(t)
	createUser(t, svc, "admin", "admin@example.com", models.RoleAdmin, false, true)
	createUser(t, svc, "staff", "staff@example.com", models.RoleStaff, true, true)

	svc.NotifyAdminsOfFailure(context.Background(), errors.New("db <down>"))

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d mails, expected 1", len(sender.sent))
	}
	mail := sender.sent[0]
	if mail.to[0] != "admin@example.com" {
		t.Errorf("to = %v, expected admin", mail.to)
	}
	if mail.subject != "[긴급] 삼송 CAR 시스템 - AI 보고서 생성 실패" {
		t.Errorf("subject = %q", mail.subject)
	}
	if !strings.Contains(mail.body, "db &lt;down&gt;") || !strings.Contains(mail.body, "즉시 시스템을 점검해주세요.") {
		t.Errorf("unexpected body %q", mail.body)
	}
}

func TestKoreanDate(t *testing.T) {
	got := KoreanDate(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	if got != "2026년 3월 16일 월요일" {
		t.Errorf("KoreanDate() = %q", got)
	}
}
