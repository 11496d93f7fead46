package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/scoring"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/comadj/car-system/pkg/response"
	"gorm.io/gorm"
)

// contactCarIDs selects the ids of CARs linked to a contact matching the
// appended condition.
const contactCarIDs = "SELECT ccc.car_id FROM car_customer_contacts ccc " +
	"JOIN customer_contacts cc ON cc.id = ccc.customer_contact_id WHERE "

var (
	monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	dayPattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// sortable CAR columns, keyed by both API spellings
var carSortColumns = map[string]string{
	"id":              "id",
	"issueDate":       "issue_date",
	"issue_date":      "issue_date",
	"dueDate":         "due_date",
	"due_date":        "due_date",
	"completionDate":  "completion_date",
	"completion_date": "completion_date",
	"score":           "score",
	"sentimentScore":  "sentiment_score",
	"sentiment_score": "sentiment_score",
	"importance":      "importance",
	"corporation":     "corporation",
	"createdAt":       "created_at",
	"created_at":      "created_at",
}

type CarService struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewCarService derives CAR status against the calendar day in loc, falling
// back to time.Local.
func NewCarService(db *gorm.DB, loc *time.Location) *CarService {
	if loc == nil {
		loc = time.Local
	}
	return &CarService{db: db, loc: loc, now: time.Now}
}

type CarListRequest struct {
	Corp          string   `form:"corp"`
	CustomerGroup []string `form:"customerGroup"`
	Dept          string   `form:"dept"`
	Manager       string   `form:"manager"`
	Importance    *float64 `form:"importance"`
	EventType     string   `form:"eventType"`
	Status        string   `form:"status"`
	Search        string   `form:"search"`
	StartMonth    string   `form:"startMonth"`
	EndMonth      string   `form:"endMonth"`
	Sort          string   `form:"sort"`
	Order         string   `form:"order"`
	Page          int      `form:"page"`
	Limit         int      `form:"limit"`
}

type CarListResponse struct {
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Items []models.Car `json:"items"`
}

// CarRequest is the create/update payload. Date fields accept epoch
// milliseconds or date strings; score fields accept numbers, numeric strings
// or "" to clear.
type CarRequest struct {
	Corporation        *string `json:"corporation"`
	EventType          *string `json:"event_type"`
	MainCategory       *string `json:"main_category"`
	ReceptionChannel   *string `json:"reception_channel"`
	InternalContact    *string `json:"internal_contact"`
	IssueDate          any     `json:"issue_date"`
	DueDate            any     `json:"due_date"`
	CompletionDate     any     `json:"completion_date"`
	Importance         any     `json:"importance"`
	InternalScore      any     `json:"internal_score"`
	CustomerScore      any     `json:"customer_score"`
	SubjectiveScore    any     `json:"subjective_score"`
	OpenIssue          *string `json:"open_issue"`
	FollowUpPlan       *string `json:"follow_up_plan"`
	AIKeywords         *string `json:"ai_keywords"`
	CustomerContactIDs []uint  `json:"customer_contact_ids"`
}

type CarFilterOptions struct {
	Corporations   []string `json:"corporations"`
	MainCategories []string `json:"mainCategories"`
	EventTypes     []string `json:"eventTypes"`
	Customers      []string `json:"customers"`
}

func (s *CarService) List(req *CarListRequest) (*CarListResponse, error) {
	req.Page, req.Limit = normalizePage(req.Page, req.Limit, 10)

	query := applyCarFilters(s.db.Model(&models.Car{}), req)
	status := scoring.Status(strings.TrimSpace(req.Status))
	filterStatus := status != "" && status != "전체"

	var total int64
	if !filterStatus {
		if err := query.Count(&total).Error; err != nil {
			return nil, err
		}
	}

	order := "id DESC"
	if col, ok := carSortColumns[req.Sort]; ok {
		dir := "ASC"
		if strings.EqualFold(req.Order, "desc") {
			dir = "DESC"
		}
		order = col + " " + dir + ", id DESC"
	}
	query = query.Order(order).Preload("CustomerContacts")

	if !filterStatus {
		var cars []models.Car
		if err := query.Offset((req.Page - 1) * req.Limit).Limit(req.Limit).Find(&cars).Error; err != nil {
			return nil, err
		}
		s.fillStatus(cars)
		return &CarListResponse{Total: total, Page: req.Page, Limit: req.Limit, Items: cars}, nil
	}

	// status is derived, so filter the whole result before paging
	var cars []models.Car
	if err := query.Find(&cars).Error; err != nil {
		return nil, err
	}
	s.fillStatus(cars)
	matched := make([]models.Car, 0, len(cars))
	for _, car := range cars {
		if car.Status == status {
			matched = append(matched, car)
		}
	}
	start := (req.Page - 1) * req.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + req.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return &CarListResponse{Total: int64(len(matched)), Page: req.Page, Limit: req.Limit, Items: matched[start:end]}, nil
}

func applyCarFilters(query *gorm.DB, req *CarListRequest) *gorm.DB {
	if req.Corp != "" && req.Corp != "전체" {
		query = query.Where("corporation = ?", req.Corp)
	}

	groups := splitMulti(req.CustomerGroup)
	var contactConds []string
	var contactArgs []interface{}
	if len(groups) > 0 {
		contactConds = append(contactConds, "cc.group_name IN ?")
		contactArgs = append(contactArgs, groups)
	}
	if req.Dept != "" && req.Dept != "전체" {
		contactConds = append(contactConds, "cc.department = ?")
		contactArgs = append(contactArgs, req.Dept)
	}
	if len(contactConds) > 0 {
		query = query.Where("id IN ("+contactCarIDs+strings.Join(contactConds, " AND ")+")", contactArgs...)
	}

	for _, keyword := range splitAndTrim(req.Manager, ",") {
		like := "%" + keyword + "%"
		query = query.Where("(internal_contact LIKE ? OR id IN ("+contactCarIDs+"cc.name LIKE ?))", like, like)
	}

	if req.Importance != nil {
		query = query.Where("importance = ?", *req.Importance)
	}
	if req.EventType != "" {
		query = query.Where("event_type = ?", req.EventType)
	}

	if q := strings.TrimSpace(req.Search); q != "" {
		like := "%" + q + "%"
		query = query.Where(
			"(corporation LIKE ? OR internal_contact LIKE ? OR open_issue LIKE ? OR follow_up_plan LIKE ? OR main_category LIKE ? OR id IN ("+
				contactCarIDs+"cc.name LIKE ? OR cc.group_name LIKE ? OR cc.department LIKE ?))",
			like, like, like, like, like, like, like, like)
	}

	if start, ok := monthStartMillis(req.StartMonth); ok {
		query = query.Where("issue_date >= ?", start)
	}
	if end, ok := monthEndMillis(req.EndMonth); ok {
		query = query.Where("issue_date <= ?", end)
	}
	return query
}

// splitMulti flattens repeated and comma-separated values, dropping "전체".
func splitMulti(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range splitAndTrim(v, ",") {
			if part != "전체" {
				out = append(out, part)
			}
		}
	}
	return out
}

// monthStartMillis reads YYYY-MM or YYYY-MM-DD as UTC midnight of that day
// (the 1st for a month).
func monthStartMillis(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if monthPattern.MatchString(v) {
		v += "-01"
	}
	if !dayPattern.MatchString(v) {
		return 0, false
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// monthEndMillis is the last UTC millisecond of the day, or of the month's
// last day for YYYY-MM.
func monthEndMillis(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	var day time.Time
	switch {
	case monthPattern.MatchString(v):
		t, err := time.Parse("2006-01", v)
		if err != nil {
			return 0, false
		}
		day = t.AddDate(0, 1, -1)
	case dayPattern.MatchString(v):
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return 0, false
		}
		day = t
	default:
		return 0, false
	}
	return day.AddDate(0, 0, 1).UnixMilli() - 1, true
}

func (s *CarService) fillStatus(cars []models.Car) {
	now := s.now().In(s.loc)
	for i := range cars {
		cars[i].FillStatus(now)
	}
}

func (s *CarService) GetByID(id uint) (*models.Car, error) {
	var car models.Car
	if err := s.db.Preload("CustomerContacts").First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("CAR not found")
		}
		return nil, err
	}
	car.FillStatus(s.now().In(s.loc))
	return &car, nil
}

func (s *CarService) Create(req *CarRequest, createdBy *uint) (*models.Car, error) {
	car := models.Car{CreatedBy: createdBy}
	if err := applyCarRequest(&car, req); err != nil {
		return nil, err
	}
	if err := validateCar(&car); err != nil {
		return nil, err
	}
	car.Rescore()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("CustomerContacts").Create(&car).Error; err != nil {
			return err
		}
		return linkContacts(tx, car.ID, req.CustomerContactIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("create car: %w", err)
	}
	LogInfo("CarService", "create", fmt.Sprintf("CAR %d created", car.ID), createdBy, "", "", nil)
	return s.GetByID(car.ID)
}

// Update merges req over the stored row, recomputes the derived scores and
// replaces the contact links when CustomerContactIDs is present.
func (s *CarService) Update(id uint, req *CarRequest) (*models.Car, error) {
	var car models.Car
	if err := s.db.First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("CAR not found")
		}
		return nil, err
	}
	if err := applyCarRequest(&car, req); err != nil {
		return nil, err
	}
	if err := validateCar(&car); err != nil {
		return nil, err
	}
	car.Rescore()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.CustomerContactIDs != nil {
			if err := tx.Exec("DELETE FROM car_customer_contacts WHERE car_id = ?", car.ID).Error; err != nil {
				return err
			}
		}
		if err := tx.Omit("CustomerContacts", "CreatedAt").Save(&car).Error; err != nil {
			return err
		}
		if req.CustomerContactIDs != nil {
			return linkContacts(tx, car.ID, req.CustomerContactIDs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update car %d: %w", id, err)
	}
	return s.GetByID(car.ID)
}

// Delete removes a CAR. STAFF may only delete CARs they created.
func (s *CarService) Delete(id uint, user *models.User) error {
	var car models.Car
	if err := s.db.First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NewNotFound("CAR not found")
		}
		return err
	}
	if user.Role != models.RoleAdmin && user.Role != models.RoleManager {
		if car.CreatedBy == nil || *car.CreatedBy != user.ID {
			return response.NewForbidden("본인이 등록한 CAR만 삭제할 수 있습니다.")
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM car_customer_contacts WHERE car_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Car{}, id).Error
	})
	if err != nil {
		return err
	}
	LogInfo("CarService", "delete", fmt.Sprintf("CAR %d deleted", id), &user.ID, "", "", nil)
	return nil
}

func (s *CarService) GetFilterOptions() (*CarFilterOptions, error) {
	opts := &CarFilterOptions{}
	columns := []struct {
		model  interface{}
		column string
		dest   *[]string
	}{
		{&models.Car{}, "corporation", &opts.Corporations},
		{&models.Car{}, "main_category", &opts.MainCategories},
		{&models.Car{}, "event_type", &opts.EventTypes},
		{&models.CustomerContact{}, "group_name", &opts.Customers},
	}
	for _, c := range columns {
		var values []string
		if err := s.db.Model(c.model).
			Where(c.column+" IS NOT NULL AND "+c.column+" <> ?", "").
			Distinct(c.column).Order(c.column).Pluck(c.column, &values).Error; err != nil {
			return nil, err
		}
		if values == nil {
			values = []string{}
		}
		*c.dest = values
	}
	return opts, nil
}

// RescoreAll recomputes score and sentiment for every CAR and returns how
// many rows changed.
func (s *CarService) RescoreAll(ctx context.Context) (int, error) {
	var batch []models.Car
	updated := 0
	result := s.db.WithContext(ctx).FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			car := &batch[i]
			oldScore, oldSentiment := car.Score, car.SentimentScore
			car.Rescore()
			if car.Score == oldScore && floatPtrEqual(car.SentimentScore, oldSentiment) {
				continue
			}
			if err := s.db.WithContext(ctx).Model(&models.Car{}).Where("id = ?", car.ID).
				Updates(map[string]interface{}{"score": car.Score, "sentiment_score": car.SentimentScore}).Error; err != nil {
				return fmt.Errorf("rescore car %d: %w", car.ID, err)
			}
			updated++
		}
		return nil
	})
	if result.Error != nil {
		return updated, result.Error
	}
	logger.Infof("[CarService] rescored %d CARs", updated)
	return updated, nil
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func linkContacts(tx *gorm.DB, carID uint, contactIDs []uint) error {
	seen := make(map[uint]bool, len(contactIDs))
	for _, cid := range contactIDs {
		if cid == 0 || seen[cid] {
			continue
		}
		seen[cid] = true
		var count int64
		if err := tx.Model(&models.CustomerContact{}).Where("id = ?", cid).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return response.NewBadRequest(fmt.Sprintf("customer contact %d not found", cid))
		}
		if err := tx.Exec("INSERT INTO car_customer_contacts (car_id, customer_contact_id) VALUES (?, ?)", carID, cid).Error; err != nil {
			return err
		}
	}
	return nil
}

func validateCar(car *models.Car) error {
	switch scoring.EventType(car.EventType) {
	case scoring.EventOneTime, scoring.EventContinuous:
	default:
		return response.NewBadRequest("event_type must be ONE_TIME or CONTINUOUS")
	}
	if car.IssueDate == 0 {
		return response.NewBadRequest("issue_date is required")
	}
	return nil
}

// applyCarRequest copies the fields present in req onto car.
func applyCarRequest(car *models.Car, req *CarRequest) error {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&car.Corporation, req.Corporation)
	setString(&car.EventType, req.EventType)
	setString(&car.MainCategory, req.MainCategory)
	setString(&car.ReceptionChannel, req.ReceptionChannel)
	setString(&car.InternalContact, req.InternalContact)
	setString(&car.OpenIssue, req.OpenIssue)
	setString(&car.FollowUpPlan, req.FollowUpPlan)
	setString(&car.AIKeywords, req.AIKeywords)

	if req.IssueDate != nil {
		ms, ok := scoring.ToEpochMillis(req.IssueDate)
		if !ok {
			return response.NewBadRequest("invalid issue_date")
		}
		car.IssueDate = ms
	}
	if req.DueDate != nil {
		car.DueDate = scoring.MillisPtr(req.DueDate)
	}
	if req.CompletionDate != nil {
		car.CompletionDate = scoring.CompletionPtr(req.CompletionDate)
	}

	for _, f := range []struct {
		name string
		src  any
		dst  **float64
	}{
		{"importance", req.Importance, &car.Importance},
		{"internal_score", req.InternalScore, &car.InternalScore},
		{"customer_score", req.CustomerScore, &car.CustomerScore},
		{"subjective_score", req.SubjectiveScore, &car.SubjectiveScore},
	} {
		if f.src == nil {
			continue
		}
		v, err := optionalFloat(f.src)
		if err != nil {
			return response.NewBadRequest("invalid " + f.name)
		}
		*f.dst = v
	}
	return nil
}

// optionalFloat reads a JSON number or numeric string; blank clears.
// Infinities and NaN are rejected.
func optionalFloat(v any) (*float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" || s == "-" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		f = parsed
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite value %v", v)
	}
	return &f, nil
}
