package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/comadj/car-system/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	exportSummarySheet = "요약"
	maxSheetNameLen    = 31
)

// ReportExporter renders a stored weekly report as an xlsx workbook: one
// summary sheet plus one sheet per customer.
type ReportExporter struct{}

func NewReportExporter() *ReportExporter {
	return &ReportExporter{}
}

// FileName is the download name for report.
func (e *ReportExporter) FileName(report *models.WeeklyReport) string {
	return sanitizeFileName(report.Title) + ".xlsx"
}

func (e *ReportExporter) Export(report *models.WeeklyReport) ([]byte, error) {
	customers, err := report.Customers()
	if err != nil {
		return nil, fmt.Errorf("decode report %d: %w", report.ID, err)
	}
	names := make([]string, 0, len(customers))
	for name := range customers {
		names = append(names, name)
	}
	sort.Strings(names)

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", exportSummarySheet); err != nil {
		return nil, err
	}
	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	e.writeSummary(file, bold, report, names, customers)

	used := map[string]struct{}{exportSummarySheet: {}}
	for _, name := range names {
		sheet := uniqueSheetName(name, used)
		used[sheet] = struct{}{}
		if _, err := file.NewSheet(sheet); err != nil {
			return nil, err
		}
		e.writeCustomer(file, bold, sheet, name, customers[name])
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *ReportExporter) writeSummary(file *excelize.File, bold int, report *models.WeeklyReport, names []string, customers map[string]models.CustomerReport) {
	sheet := exportSummarySheet
	set := func(col, row int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = file.SetCellValue(sheet, cell, value)
	}

	set(1, 1, "보고서")
	set(2, 1, report.Title)
	set(1, 2, "기준 주")
	set(2, 2, report.WeekStart.Format("2006-01-02"))
	set(1, 3, "생성 시각")
	set(2, 3, report.CreatedAt.Format("2006-01-02 15:04"))
	_ = file.SetCellStyle(sheet, "A1", "A3", bold)

	headers := []string{"고객", "총 이벤트", "최근 이벤트", "미결 이벤트", "평균 만족도", "종합 점수", "AI 오류"}
	const headerRow = 5
	for i, h := range headers {
		set(i+1, headerRow, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), headerRow)
	_ = file.SetCellStyle(sheet, "A5", last, bold)

	for i, name := range names {
		block := customers[name]
		row := headerRow + 1 + i
		set(1, row, name)
		set(2, row, block.Summary.TotalEvents)
		set(3, row, block.Summary.RecentEvents)
		set(4, row, block.Summary.OpenEvents)
		if block.Summary.AvgSentiment != nil {
			set(5, row, *block.Summary.AvgSentiment)
		} else {
			set(5, row, "N/A")
		}
		set(6, row, block.Summary.ScoreSum)
		if block.Errors.Any() {
			set(7, row, "Y")
		}
	}
	_ = file.SetColWidth(sheet, "A", "A", 24)
	_ = file.SetColWidth(sheet, "B", "G", 14)
}

func (e *ReportExporter) writeCustomer(file *excelize.File, bold int, sheet, name string, block models.CustomerReport) {
	row := 1
	line := func(label string, value any) {
		_ = file.SetCellValue(sheet, fmt.Sprintf("A%d", row), label)
		_ = file.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), bold)
		if value != nil {
			_ = file.SetCellValue(sheet, fmt.Sprintf("B%d", row), value)
		}
		row++
	}

	line("고객", name)
	line("요약", block.Summary.SummaryText)
	line("근거", block.Evidence)
	row++

	line("주요 이슈", nil)
	_ = file.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &[]any{"이슈", "해결 방안", "점수"})
	_ = file.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), bold)
	row++
	for _, issue := range block.TopIssues {
		_ = file.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &[]any{issue.Title, issue.Plan, issue.Score})
		row++
	}
	row++

	line("AI 전략 제언", block.AIRecommendation)
	keys := make([]string, 0, len(block.ParsedStrategy))
	for k := range block.ParsedStrategy {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line(k, block.ParsedStrategy[k])
	}
	if block.Errors.SummaryError != nil {
		line("요약 오류", *block.Errors.SummaryError)
	}
	if block.Errors.StrategyError != nil {
		line("전략 오류", *block.Errors.StrategyError)
	}

	_ = file.SetColWidth(sheet, "A", "A", 18)
	_ = file.SetColWidth(sheet, "B", "B", 80)
	wrap, err := file.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err == nil {
		_ = file.SetCellStyle(sheet, "B1", fmt.Sprintf("B%d", row), wrap)
	}
}

// uniqueSheetName strips characters excel rejects, truncates to the sheet
// name limit and suffixes a counter on collision.
func uniqueSheetName(name string, used map[string]struct{}) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if base == "" {
		base = "고객"
	}
	base = truncateRunes(base, maxSheetNameLen)

	candidate := base
	for i := 2; ; i++ {
		if _, ok := used[candidate]; !ok {
			return candidate
		}
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateRunes(base, maxSheetNameLen-len(suffix)) + suffix
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sanitizeFileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return "weekly-report"
	}
	return s
}
