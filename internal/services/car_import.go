package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/scoring"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/comadj/car-system/pkg/response"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportColumns is the upload template header, in order.
var ImportColumns = []string{
	"corporation", "event_type", "issue_date", "due_date", "importance",
	"internal_contact", "reception_channel", "main_category", "open_issue",
	"follow_up_plan", "completion_date", "internal_score", "customer_score",
	"subjective_score", "customer", "customer_department", "customer_contact",
}

const importSheet = "CAR"

// excel serial days above this are treated as epoch values instead
const maxExcelSerial = 2958465

type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Rows            int              `json:"rows"`
	Created         int              `json:"created"`
	Duplicates      int              `json:"duplicates"`
	ContactsCreated int              `json:"contactsCreated"`
	Errors          []ImportRowError `json:"errors"`
}

// importRow is one template row keyed by lower-cased header.
type importRow struct {
	line   int
	fields map[string]string
	xlsx   bool
}

func (r importRow) get(key string) string {
	return strings.TrimSpace(r.fields[key])
}

type CarImporter struct {
	db        *gorm.DB
	customers *CustomerService
}

func NewCarImporter(db *gorm.DB) *CarImporter {
	return &CarImporter{db: db, customers: NewCustomerService(db)}
}

// Import reads an .xlsx or .csv upload and creates one CAR per row. Rows
// repeating an existing openIssue+issueDate+corporation are skipped.
func (s *CarImporter) Import(r io.Reader, filename string, createdBy *uint) (*ImportResult, error) {
	var rows []importRow
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		rows, err = readXLSXRows(r)
	case ".csv":
		rows, err = readCSVRows(r)
	default:
		return nil, response.NewBadRequest("only .xlsx and .csv files are supported")
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Rows: len(rows), Errors: []ImportRowError{}}
	for _, row := range rows {
		created, contacts, err := s.importRow(row, createdBy)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: row.line, Message: err.Error()})
			continue
		}
		result.ContactsCreated += contacts
		if created {
			result.Created++
		} else {
			result.Duplicates++
		}
	}

	logger.Info().
		Str("file", filename).
		Int("rows", result.Rows).
		Int("created", result.Created).
		Int("duplicates", result.Duplicates).
		Int("errors", len(result.Errors)).
		Msg("[CarImport] import finished")
	LogInfo("CarImport", "import", fmt.Sprintf("%s: %d created, %d duplicates, %d errors",
		filename, result.Created, result.Duplicates, len(result.Errors)), createdBy, "", "", nil)
	return result, nil
}

func (s *CarImporter) importRow(row importRow, createdBy *uint) (bool, int, error) {
	car, err := buildImportedCar(row)
	if err != nil {
		return false, 0, err
	}
	car.CreatedBy = createdBy

	group := row.get("customer")
	department := row.get("customer_department")
	names := splitAndTrim(row.get("customer_contact"), ",")
	if len(names) == 0 || group == "" {
		return false, 0, errors.New("customer and customer_contact are required")
	}

	var created bool
	var contactsCreated int
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var dup int64
		if err := tx.Model(&models.Car{}).
			Where("open_issue = ? AND issue_date = ? AND corporation = ?", car.OpenIssue, car.IssueDate, car.Corporation).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return nil
		}

		ids := make([]uint, 0, len(names))
		for _, name := range names {
			contact, isNew, err := s.customers.FindOrCreate(tx, &models.CustomerContact{
				Name:       name,
				Group:      group,
				Department: department,
			})
			if err != nil {
				return err
			}
			if isNew {
				contactsCreated++
			}
			ids = append(ids, contact.ID)
		}
		if err := tx.Omit("CustomerContacts").Create(car).Error; err != nil {
			return err
		}
		created = true
		return linkContacts(tx, car.ID, ids)
	})
	if err != nil {
		return false, 0, err
	}
	return created, contactsCreated, nil
}

func buildImportedCar(row importRow) (*models.Car, error) {
	eventType := strings.ToUpper(row.get("event_type"))
	if eventType == "" {
		eventType = string(scoring.EventOneTime)
	}
	car := &models.Car{
		Corporation:      row.get("corporation"),
		EventType:        eventType,
		InternalContact:  row.get("internal_contact"),
		ReceptionChannel: row.get("reception_channel"),
		MainCategory:     row.get("main_category"),
		OpenIssue:        row.get("open_issue"),
		FollowUpPlan:     row.get("follow_up_plan"),
		DueDate:          row.date("due_date"),
		CompletionDate:   row.date("completion_date"),
		Importance:       row.number("importance"),
		InternalScore:    row.number("internal_score"),
		CustomerScore:    row.number("customer_score"),
		SubjectiveScore:  row.number("subjective_score"),
	}
	if issue := row.date("issue_date"); issue != nil {
		car.IssueDate = *issue
	}
	if car.Importance == nil {
		one := 1.0
		car.Importance = &one
	}
	if err := validateCar(car); err != nil {
		return nil, err
	}
	car.Rescore()
	return car, nil
}

func (r importRow) date(key string) *int64 {
	v := r.get(key)
	if v == "" {
		return nil
	}
	if r.xlsx {
		if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 && serial < maxExcelSerial {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				return nil
			}
			ms := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
			return &ms
		}
	}
	return scoring.MillisPtr(v)
}

func (r importRow) number(key string) *float64 {
	v := r.get(key)
	if v == "" || v == "-" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func readXLSXRows(r io.Reader) ([]importRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, response.NewBadRequest(fmt.Sprintf("cannot read xlsx: %v", err))
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return keyRows(raw, true)
}

func readCSVRows(r io.Reader) ([]importRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	raw, err := reader.ReadAll()
	if err != nil {
		return nil, response.NewBadRequest(fmt.Sprintf("cannot read csv: %v", err))
	}
	return keyRows(raw, false)
}

func keyRows(raw [][]string, xlsx bool) ([]importRow, error) {
	if len(raw) < 2 {
		return nil, response.NewBadRequest("file has no data rows")
	}
	header := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]importRow, 0, len(raw)-1)
	for i, cells := range raw[1:] {
		fields := make(map[string]string, len(header))
		empty := true
		for j, cell := range cells {
			if j >= len(header) || header[j] == "" {
				continue
			}
			fields[header[j]] = cell
			if strings.TrimSpace(cell) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, importRow{line: i + 2, fields: fields, xlsx: xlsx})
	}
	return rows, nil
}

// WriteTemplate writes an empty upload template workbook to w.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", importSheet); err != nil {
		return err
	}
	for i, col := range ImportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(importSheet, cell, col)
	}
	example := []any{
		"삼송", "ONE_TIME", "2026-03-02", "", 1, "홍길동", "메일", "품질",
		"납기 지연 문의", "일정 재조율", "", "", "", 3, "Acme", "구매팀", "Kim, Lee",
	}
	for i, v := range example {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(importSheet, cell, v)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(ImportColumns), 1)
		f.SetCellStyle(importSheet, "A1", last, headerStyle)
	}
	return f.Write(w)
}
