package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"mime"
	"net/mail"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
	"gorm.io/gorm"
)

type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"smtp_host"`
	Port     int    `json:"smtp_port"`
	Username string `json:"username"`
	Password string `json:"-"`
	From     string `json:"from"`
	UseTLS   bool   `json:"use_tls"`
}

// MailSender delivers one HTML message.
type MailSender interface {
	Send(cfg *EmailConfig, from string, to []string, subject, body string) error
}

// EmailResult summarises a weekly report distribution.
type EmailResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	RecipientCount int    `json:"recipientCount"`
	SuccessCount   int    `json:"successCount"`
	FailCount      int    `json:"failCount"`
}

type EmailService struct {
	db       *gorm.DB
	settings *SystemConfigService
	mail     config.MailConfig
	sender   MailSender
	// pause between recipients
	interval time.Duration
}

func NewEmailService(db *gorm.DB, mailCfg config.MailConfig) *EmailService {
	if mailCfg.SystemName == "" {
		mailCfg.SystemName = "삼송 CAR 시스템"
	}
	return &EmailService{
		db:       db,
		settings: NewSystemConfigService(db),
		mail:     mailCfg,
		sender:   smtpSender{},
		interval: 100 * time.Millisecond,
	}
}

// SetSender replaces the SMTP transport.
func (s *EmailService) SetSender(sender MailSender) {
	s.sender = sender
	s.interval = 0
}

func (s *EmailService) GetConfig() *EmailConfig {
	cfg := &EmailConfig{}
	configs, _ := s.settings.GetByGroup("email")
	for _, c := range configs {
		switch c.Key {
		case "email_enabled":
			cfg.Enabled = c.Value == "true"
		case "email_smtp_host":
			cfg.Host = c.Value
		case "email_smtp_port":
			if port, err := strconv.Atoi(c.Value); err == nil {
				cfg.Port = port
			}
		case "email_username":
			cfg.Username = c.Value
		case "email_password":
			cfg.Password = c.Value
		case "email_from":
			cfg.From = c.Value
		case "email_use_tls":
			cfg.UseTLS = c.Value == "true"
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return cfg
}

type UpdateEmailConfigRequest struct {
	Enabled  *bool   `json:"enabled"`
	Host     *string `json:"smtp_host"`
	Port     *int    `json:"smtp_port"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	From     *string `json:"from"`
	UseTLS   *bool   `json:"use_tls"`
}

// UpdateConfig writes the provided fields. An empty password keeps the
// stored one.
func (s *EmailService) UpdateConfig(req *UpdateEmailConfigRequest) error {
	updates := map[string]string{}
	if req.Enabled != nil {
		updates["email_enabled"] = strconv.FormatBool(*req.Enabled)
	}
	if req.Host != nil {
		updates["email_smtp_host"] = strings.TrimSpace(*req.Host)
	}
	if req.Port != nil {
		if *req.Port <= 0 || *req.Port > 65535 {
			return fmt.Errorf("invalid smtp port %d", *req.Port)
		}
		updates["email_smtp_port"] = strconv.Itoa(*req.Port)
	}
	if req.Username != nil {
		updates["email_username"] = strings.TrimSpace(*req.Username)
	}
	if req.Password != nil && *req.Password != "" {
		updates["email_password"] = *req.Password
	}
	if req.From != nil {
		from := strings.TrimSpace(*req.From)
		if from != "" {
			if _, err := mail.ParseAddress(from); err != nil {
				return fmt.Errorf("invalid sender address: %w", err)
			}
		}
		updates["email_from"] = from
	}
	if req.UseTLS != nil {
		updates["email_use_tls"] = strconv.FormatBool(*req.UseTLS)
	}
	return s.settings.setAll(updates)
}

// SendWeeklyReport mails report to every active user that opted in. Each
// recipient gets an individual message; failures are counted, not returned.
func (s *EmailService) SendWeeklyReport(ctx context.Context, report *models.WeeklyReport) (*EmailResult, error) {
	cfg := s.GetConfig()
	if !cfg.Enabled || cfg.Host == "" {
		logger.Info().Msg("[Email] email disabled, weekly report not sent")
		return &EmailResult{Success: false, Message: "이메일 발송이 비활성화되어 있습니다."}, nil
	}

	var recipients []models.User
	if err := s.db.WithContext(ctx).
		Where("weekly_report_email = ? AND is_active = ? AND email <> ?", true, true, "").
		Order("id").Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return &EmailResult{Success: true, Message: "수신 대상자 없음"}, nil
	}

	body, err := BuildWeeklyReportHTML(report, s.mail.SystemName, time.Now())
	if err != nil {
		return nil, err
	}
	title := report.Title
	if title == "" {
		title = "주간 보고서"
	}
	subject := fmt.Sprintf("[%s] %s - %s", s.mail.SystemName, title, report.WeekStart.Format("2006-01-02"))

	result := &EmailResult{Success: true, RecipientCount: len(recipients)}
	for i, user := range recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.sender.Send(cfg, s.fromAddress(cfg), []string{user.Email}, subject, body); err != nil {
			logger.Warnf("[Email] weekly report to %s <%s> failed: %v", user.DisplayName(), user.Email, err)
			result.FailCount++
		} else {
			result.SuccessCount++
		}
		if s.interval > 0 && i < len(recipients)-1 {
			time.Sleep(s.interval)
		}
	}
	result.Message = fmt.Sprintf("이메일 발송 완료 (성공: %d, 실패: %d)", result.SuccessCount, result.FailCount)
	logger.Infof("[Email] weekly report %d sent: %s", report.ID, result.Message)
	return result, nil
}

// NotifyAdminsOfFailure mails every ADMIN account about a failed report run.
// Errors are logged only.
func (s *EmailService) NotifyAdminsOfFailure(ctx context.Context, cause error) {
	cfg := s.GetConfig()
	if !cfg.Enabled || cfg.Host == "" {
		logger.Warn().Err(cause).Msg("[Email] email disabled, admin failure notice skipped")
		return
	}

	var admins []models.User
	if err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ? AND email <> ?", models.RoleAdmin, true, "").
		Find(&admins).Error; err != nil {
		logger.Errorf("[Email] load admins failed: %v", err)
		return
	}
	if len(admins) == 0 {
		logger.Warn().Msg("[Email] no admin email configured")
		return
	}

	subject := fmt.Sprintf("[긴급] %s - AI 보고서 생성 실패", s.mail.SystemName)
	body := BuildFailureHTML(cause, time.Now())
	for _, admin := range admins {
		if err := s.sender.Send(cfg, s.fromAddress(cfg), []string{admin.Email}, subject, body); err != nil {
			logger.Errorf("[Email] failure notice to %s failed: %v", admin.Email, err)
			continue
		}
		logger.Infof("[Email] failure notice sent to %s", admin.Email)
	}
}

func (s *EmailService) fromAddress(cfg *EmailConfig) string {
	addr := cfg.From
	if addr == "" {
		addr = cfg.Username
	}
	name := s.mail.SenderName
	if name == "" {
		name = s.mail.SystemName
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}

var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// KoreanDate formats t like "2026년 3월 16일 월요일".
func KoreanDate(t time.Time) string {
	return fmt.Sprintf("%d년 %d월 %d일 %s", t.Year(), int(t.Month()), t.Day(), koreanWeekdays[t.Weekday()])
}

// BuildWeeklyReportHTML renders the distribution mail for report.
func BuildWeeklyReportHTML(report *models.WeeklyReport, systemName string, generatedAt time.Time) (string, error) {
	blocks, err := report.Customers()
	if err != nil {
		return "", fmt.Errorf("decode report %d: %w", report.ID, err)
	}
	names := make([]string, 0, len(blocks))
	for name := range blocks {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"></head>")
	sb.WriteString("<body style=\"margin: 0; padding: 0; font-family: Arial, sans-serif; color: #333; background-color: #f4f4f4;\">")
	sb.WriteString("<table style=\"width: 100%; max-width: 800px; margin: 0 auto; background-color: white; border-collapse: collapse;\">")
	sb.WriteString(fmt.Sprintf("<tr><td style=\"background-color: #667eea; color: white; padding: 30px; text-align: center;\"><h1 style=\"margin: 0;\">%s</h1><p>주간 분석 보고서</p><p>%s 기준</p></td></tr>",
		html.EscapeString(systemName), KoreanDate(report.WeekStart)))
	sb.WriteString("<tr><td style=\"padding: 30px;\">")
	sb.WriteString(fmt.Sprintf("<p style=\"color: #6c757d;\">본 보고서는 AI 기반 분석을 통해 생성된 %d개 고객사의 주간 CAR 현황을 담고 있습니다.<br>각 고객사별 주요 이슈와 AI 전략 제언을 확인하실 수 있습니다.</p>", len(names)))

	for _, name := range names {
		writeCustomerSection(&sb, name, blocks[name])
	}

	sb.WriteString(fmt.Sprintf("<p style=\"color: #6c757d; font-size: 14px; text-align: center;\">본 메일은 자동으로 발송되었습니다. 문의사항은 시스템 관리자에게 연락해주세요.<br><strong>%s</strong> | 생성일시: %s</p>",
		html.EscapeString(systemName), generatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString("</td></tr></table></body></html>")
	return sb.String(), nil
}

func writeCustomerSection(sb *strings.Builder, name string, block models.CustomerReport) {
	sb.WriteString("<table style=\"width: 100%; margin-bottom: 40px; border: 1px solid #e0e0e0; border-collapse: collapse;\"><tr><td style=\"padding: 20px; background-color: #f9f9f9;\">")
	sb.WriteString(fmt.Sprintf("<h3 style=\"color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px;\">%s</h3>", html.EscapeString(name)))

	sentiment := "N/A"
	if block.Summary.AvgSentiment != nil {
		sentiment = fmt.Sprintf("%.1f", *block.Summary.AvgSentiment)
	}
	sb.WriteString("<h4 style=\"color: #34495e;\">주요 지표</h4>")
	sb.WriteString(fmt.Sprintf("<p>• 총 이벤트 수: <strong>%d건</strong></p>", block.Summary.TotalEvents))
	sb.WriteString(fmt.Sprintf("<p>• 평균 만족도: <strong>%s점</strong></p>", sentiment))
	sb.WriteString(fmt.Sprintf("<p>• 종합 점수: <strong>%.1f점</strong></p>", block.Summary.ScoreSum))

	if len(block.TopIssues) > 0 {
		sb.WriteString(fmt.Sprintf("<h4 style=\"color: #34495e;\">주요 이슈 (Top %d)</h4>", len(block.TopIssues)))
		for i, issue := range block.TopIssues {
			sb.WriteString("<div style=\"padding: 15px; margin-bottom: 12px; background-color: #f8f9fa; border: 1px solid #dee2e6;\">")
			sb.WriteString(fmt.Sprintf("<p style=\"margin: 0; font-weight: bold;\">%d. %s</p>", i+1, html.EscapeString(issue.Title)))
			sb.WriteString(fmt.Sprintf("<p style=\"margin: 8px 0; color: #e74c3c; font-size: 12px;\">점수: %s</p>", formatScore(issue.Score)))
			sb.WriteString(fmt.Sprintf("<p style=\"margin: 0; color: #6c757d;\"><strong>해결 방안:</strong><br>%s</p>", html.EscapeString(issue.Plan)))
			sb.WriteString("</div>")
		}
	}

	if block.AIRecommendation != "" {
		recommendation := strings.ReplaceAll(html.EscapeString(block.AIRecommendation), "\n", "<br>")
		sb.WriteString("<h4 style=\"color: #34495e;\">AI 전략 제언</h4>")
		sb.WriteString(fmt.Sprintf("<div style=\"padding: 15px; background-color: #e8f6f3; border-left: 4px solid #27ae60;\">%s</div>", recommendation))
	}
	sb.WriteString("</td></tr></table>")
}

func BuildFailureHTML(cause error, at time.Time) string {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	var sb strings.Builder
	sb.WriteString("<h2 style=\"color: #dc3545;\">시스템 오류 발생</h2>")
	sb.WriteString(fmt.Sprintf("<p><strong>발생 시간:</strong> %s</p>", at.Format("2006-01-02 15:04:05")))
	sb.WriteString("<p><strong>오류 내용:</strong></p>")
	sb.WriteString(fmt.Sprintf("<pre style=\"background-color: #f8f9fa; padding: 15px; border: 1px solid #dee2e6;\">%s</pre>", html.EscapeString(msg)))
	sb.WriteString("<p style=\"color: #6c757d;\">즉시 시스템을 점검해주세요.</p>")
	return sb.String()
}

type smtpSender struct{}

func (smtpSender) Send(cfg *EmailConfig, from string, to []string, subject, body string) error {
	envelopeFrom := cfg.From
	if envelopeFrom == "" {
		envelopeFrom = cfg.Username
	}

	var message strings.Builder
	message.WriteString("From: " + from + "\r\n")
	message.WriteString("To: " + strings.Join(to, ",") + "\r\n")
	message.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if cfg.UseTLS {
		return sendMailTLS(cfg, addr, auth, envelopeFrom, to, message.String())
	}
	return smtp.SendMail(addr, auth, envelopeFrom, to, []byte(message.String()))
}

func sendMailTLS(cfg *EmailConfig, addr string, auth smtp.Auth, from string, to []string, message string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
