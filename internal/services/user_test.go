package services

import (
	"net/http"
	"testing"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/utils"
	"github.com/comadj/car-system/pkg/response"
)

func TestUserService_Create(t *testing.T) {
	svc := NewUserService(newTestDB(t))

	user, err := svc.Create(&CreateUserRequest{
		Username:          " lee ",
		Password:          "pw1234",
		Name:              "Lee",
		Email:             "lee@example.com",
		WeeklyReportEmail: true,
	}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.Username != "lee" || user.Role != models.RoleStaff || !user.WeeklyReportEmail {
		t.Errorf("user = %+v", user)
	}
	if !utils.CheckPassword("pw1234", user.Password) {
		t.Error("password should be hashed with bcrypt")
	}

	tests := []struct {
		name string
		req  CreateUserRequest
		want int
	}{
		{"duplicate", CreateUserRequest{Username: "lee", Password: "x"}, http.StatusConflict},
		{"bad role", CreateUserRequest{Username: "park", Password: "x", Role: "user"}, http.StatusBadRequest},
		{"blank username", CreateUserRequest{Username: "  ", Password: "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(&tt.req, nil)
			if got := statusOf(err); got != tt.want {
				t.Errorf("status = %d, expected %d (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestUserService_ListAndUpdate(t *testing.T) {
	svc := NewUserService(newTestDB(t))
	admin, _ := svc.Create(&CreateUserRequest{Username: "root", Password: "pw", Role: models.RoleAdmin}, nil)
	staff, _ := svc.Create(&CreateUserRequest{Username: "kim", Password: "pw", Name: "김철수"}, nil)
	svc.Create(&CreateUserRequest{Username: "park", Password: "pw", Role: models.RoleManager}, nil)

	users, total, err := svc.List(&UserListRequest{Role: models.RoleStaff})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || users[0].ID != staff.ID {
		t.Errorf("List(STAFF) = %d users", total)
	}
	if _, total, _ := svc.List(&UserListRequest{Username: "철수"}); total != 1 {
		t.Errorf("List(name) total = %d, expected 1", total)
	}
	if _, total, _ := svc.List(&UserListRequest{PageSize: 2}); total != 3 {
		t.Errorf("List() total = %d, expected 3", total)
	}

	updated, err := svc.Update(staff.ID, &UpdateUserRequest{
		Role:              ptrTo(models.RoleManager),
		WeeklyReportEmail: ptrTo(true),
		IsActive:          ptrTo(false),
		Password:          ptrTo("newpass"),
	}, admin.ID)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Role != models.RoleManager || !updated.WeeklyReportEmail || updated.IsActive {
		t.Errorf("updated = %+v", updated)
	}
	if !utils.CheckPassword("newpass", updated.Password) {
		t.Error("password should be replaced")
	}

	selfTests := []struct {
		name string
		req  UpdateUserRequest
	}{
		{"own role", UpdateUserRequest{Role: ptrTo(models.RoleStaff)}},
		{"own active flag", UpdateUserRequest{IsActive: ptrTo(false)}},
	}
	for _, tt := range selfTests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Update(admin.ID, &tt.req, admin.ID); statusOf(err) != http.StatusBadRequest {
				t.Errorf("Update(self) = %v, expected 400", err)
			}
		})
	}
	if _, err := svc.Update(999, &UpdateUserRequest{}, admin.ID); !response.IsNotFound(err) {
		t.Errorf("Update(missing) = %v, expected not found", err)
	}
}

func TestUserService_Delete(t *testing.T) {
	svc := NewUserService(newTestDB(t))
	admin, _ := svc.Create(&CreateUserRequest{Username: "root", Password: "pw", Role: models.RoleAdmin}, nil)
	staff, _ := svc.Create(&CreateUserRequest{Username: "kim", Password: "pw"}, nil)
	svc.db.Create(&models.RefreshToken{UserID: staff.ID, TokenHash: "h1", ExpiresAt: carNow})

	if err := svc.Delete(admin.ID, admin.ID); statusOf(err) != http.StatusBadRequest {
		t.Errorf("Delete(self) = %v, expected 400", err)
	}
	if err := svc.Delete(staff.ID, admin.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.GetByID(staff.ID); !response.IsNotFound(err) {
		t.Errorf("GetByID(deleted) = %v, expected not found", err)
	}
	var tokens int64
	svc.db.Model(&models.RefreshToken{}).Where("user_id = ?", staff.ID).Count(&tokens)
	if tokens != 0 {
		t.Errorf("refresh tokens = %d, expected 0", tokens)
	}

	// soft-deleted usernames stay reserved
	if _, err := svc.Create(&CreateUserRequest{Username: "kim", Password: "pw"}, nil); statusOf(err) != http.StatusConflict {
		t.Errorf("recreate = %v, expected 409", err)
	}
}
