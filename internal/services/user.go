package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/utils"
	"github.com/comadj/car-system/pkg/response"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type UserListRequest struct {
	Username string `form:"username"`
	Role     string `form:"role"`
	AuthType string `form:"auth_type"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type CreateUserRequest struct {
	Username          string `json:"username" binding:"required"`
	Password          string `json:"password" binding:"required,min=4"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Department        string `json:"department"`
	Role              string `json:"role"`
	WeeklyReportEmail bool   `json:"weekly_report_email"`
}

type UpdateUserRequest struct {
	Name              *string `json:"name"`
	Email             *string `json:"email"`
	Department        *string `json:"department"`
	Role              *string `json:"role"`
	WeeklyReportEmail *bool   `json:"weekly_report_email"`
	IsActive          *bool   `json:"is_active"`
	Password          *string `json:"password"`
}

func (s *UserService) List(req *UserListRequest) ([]models.User, int64, error) {
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize, 20)
	query := s.db.Model(&models.User{})
	if req.Username != "" {
		like := "%" + req.Username + "%"
		query = query.Where("username LIKE ? OR name LIKE ?", like, like)
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.AuthType != "" {
		query = query.Where("auth_type = ?", req.AuthType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	if err := query.Order("id ASC").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *UserService) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) Create(req *CreateUserRequest, actorID *uint) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, response.NewBadRequest("username is required")
	}
	role := req.Role
	if role == "" {
		role = models.RoleStaff
	}
	if !models.ValidRole(role) {
		return nil, response.NewBadRequest("role must be ADMIN, MANAGER or STAFF")
	}

	var count int64
	if err := s.db.Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, response.NewConflict("username already exists")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Username:          username,
		Password:          hashed,
		Name:              strings.TrimSpace(req.Name),
		Email:             strings.TrimSpace(req.Email),
		Department:        strings.TrimSpace(req.Department),
		Role:              role,
		WeeklyReportEmail: req.WeeklyReportEmail,
		AuthType:          AuthTypeLocal,
		IsActive:          true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	LogInfo("User", "create", fmt.Sprintf("user %s created with role %s", user.Username, user.Role), actorID, "", "", nil)
	return &user, nil
}

// Update applies req to user id. Admins cannot demote or deactivate
// themselves.
func (s *UserService) Update(id uint, req *UpdateUserRequest, actorID uint) (*models.User, error) {
	user, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Department != nil {
		updates["department"] = strings.TrimSpace(*req.Department)
	}
	if req.WeeklyReportEmail != nil {
		updates["weekly_report_email"] = *req.WeeklyReportEmail
	}
	if req.Role != nil && *req.Role != user.Role {
		if !models.ValidRole(*req.Role) {
			return nil, response.NewBadRequest("role must be ADMIN, MANAGER or STAFF")
		}
		if id == actorID {
			return nil, response.NewBadRequest("cannot change your own role")
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil && *req.IsActive != user.IsActive {
		if id == actorID {
			return nil, response.NewBadRequest("cannot deactivate your own account")
		}
		updates["is_active"] = *req.IsActive
	}
	if req.Password != nil && *req.Password != "" {
		if user.AuthType != AuthTypeLocal {
			return nil, response.NewBadRequest("LDAP users have no local password")
		}
		hashed, err := utils.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hashed
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	LogInfo("User", "update", fmt.Sprintf("user %s updated", user.Username), &actorID, "", "", nil)
	return s.GetByID(id)
}

func (s *UserService) Delete(id uint, actorID uint) error {
	if id == actorID {
		return response.NewBadRequest("cannot delete your own account")
	}
	user, err := s.GetByID(id)
	if err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		return err
	}
	LogInfo("User", "delete", fmt.Sprintf("user %s deleted", user.Username), &actorID, "", "", nil)
	return nil
}
