package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/comadj/car-system/pkg/response"
	"gorm.io/gorm"
)

type CustomerService struct {
	db *gorm.DB
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db}
}

type CustomerListRequest struct {
	Customer   string `form:"customer"`
	Department string `form:"department"`
	Group      string `form:"group"`
	Name       string `form:"name"`
}

type CustomerRequest struct {
	Name       *string `json:"name"`
	Group      *string `json:"group"`
	Company    *string `json:"company"`
	Department *string `json:"department"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email"`
	Memo       *string `json:"memo"`
}

// List returns contacts filtered by company (customer) and department.
func (s *CustomerService) List(req *CustomerListRequest) ([]models.CustomerContact, error) {
	query := s.db.Model(&models.CustomerContact{})
	if req.Customer != "" {
		query = query.Where("company = ?", req.Customer)
	}
	if req.Department != "" {
		query = query.Where("department = ?", req.Department)
	}
	if req.Group != "" {
		query = query.Where("group_name = ?", req.Group)
	}
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}

	contacts := []models.CustomerContact{}
	if err := query.Order("id").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *CustomerService) GetByID(id uint) (*models.CustomerContact, error) {
	var contact models.CustomerContact
	if err := s.db.First(&contact, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("customer contact not found")
		}
		return nil, err
	}
	return &contact, nil
}

func (s *CustomerService) Create(req *CustomerRequest) (*models.CustomerContact, error) {
	var contact models.CustomerContact
	applyCustomerRequest(&contact, req)
	if contact.Name == "" {
		return nil, response.NewBadRequest("name is required")
	}
	if err := s.db.Create(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *CustomerService) Update(id uint, req *CustomerRequest) (*models.CustomerContact, error) {
	contact, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	applyCustomerRequest(contact, req)
	if contact.Name == "" {
		return nil, response.NewBadRequest("name is required")
	}
	if err := s.db.Save(contact).Error; err != nil {
		return nil, err
	}
	return contact, nil
}

// Delete removes the contact and its CAR links.
func (s *CustomerService) Delete(id uint) error {
	if _, err := s.GetByID(id); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM car_customer_contacts WHERE customer_contact_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.CustomerContact{}, id).Error
	})
}

// FindOrCreate returns the contact with the same name, group and department,
// creating it when missing.
func (s *CustomerService) FindOrCreate(tx *gorm.DB, contact *models.CustomerContact) (*models.CustomerContact, bool, error) {
	var existing models.CustomerContact
	err := tx.Where("name = ? AND group_name = ? AND department = ?", contact.Name, contact.Group, contact.Department).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if err := tx.Create(contact).Error; err != nil {
		return nil, false, err
	}
	return contact, true, nil
}

// DedupeResult reports a duplicate cleanup run.
type DedupeResult struct {
	Groups  int    `json:"groups"`
	Removed []uint `json:"removed"`
}

// Dedupe keeps the newest contact for each name|company|department and
// moves the CAR links of the removed rows onto it.
func (s *CustomerService) Dedupe() (*DedupeResult, error) {
	var all []models.CustomerContact
	if err := s.db.Order("id").Find(&all).Error; err != nil {
		return nil, err
	}

	groups := make(map[string][]models.CustomerContact)
	var keys []string
	for _, c := range all {
		key := strings.Join([]string{c.Name, c.Company, c.Department}, "|")
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], c)
	}

	result := &DedupeResult{Removed: []uint{}}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			rows := groups[key]
			if len(rows) < 2 {
				continue
			}
			sort.SliceStable(rows, func(i, j int) bool {
				if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
					return rows[i].ID > rows[j].ID
				}
				return rows[i].CreatedAt.After(rows[j].CreatedAt)
			})
			keep := rows[0]
			result.Groups++
			for _, dup := range rows[1:] {
				if err := moveContactLinks(tx, dup.ID, keep.ID); err != nil {
					return err
				}
				if err := tx.Delete(&models.CustomerContact{}, dup.ID).Error; err != nil {
					return err
				}
				result.Removed = append(result.Removed, dup.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dedupe contacts: %w", err)
	}
	logger.Infof("[CustomerService] removed %d duplicate contacts in %d groups", len(result.Removed), result.Groups)
	return result, nil
}

func moveContactLinks(tx *gorm.DB, from, to uint) error {
	var carIDs []uint
	if err := tx.Raw("SELECT car_id FROM car_customer_contacts WHERE customer_contact_id = ?", from).Scan(&carIDs).Error; err != nil {
		return err
	}
	for _, carID := range carIDs {
		var count int64
		if err := tx.Raw("SELECT COUNT(*) FROM car_customer_contacts WHERE car_id = ? AND customer_contact_id = ?", carID, to).
			Scan(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := tx.Exec("INSERT INTO car_customer_contacts (car_id, customer_contact_id) VALUES (?, ?)", carID, to).Error; err != nil {
				return err
			}
		}
	}
	return tx.Exec("DELETE FROM car_customer_contacts WHERE customer_contact_id = ?", from).Error
}

func applyCustomerRequest(c *models.CustomerContact, req *CustomerRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&c.Name, req.Name)
	set(&c.Group, req.Group)
	set(&c.Company, req.Company)
	set(&c.Department, req.Department)
	set(&c.Phone, req.Phone)
	set(&c.Email, req.Email)
	set(&c.Memo, req.Memo)
}
