package services

import (
	"testing"
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/response"
)

func TestCustomerService_CRUD(t *testing.T) {
	svc := NewCustomerService(newTestDB(t))

	created, err := svc.Create(&CustomerRequest{Name: ptrTo(" Kim "), Group: ptrTo("Acme"), Company: ptrTo("Acme Corp"), Department: ptrTo("QA")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Name != "Kim" {
		t.Errorf("Name = %q, expected trimmed Kim", created.Name)
	}
	if _, err := svc.Create(&CustomerRequest{Group: ptrTo("Acme")}); err == nil {
		t.Error("expected error for missing name")
	}

	updated, err := svc.Update(created.ID, &CustomerRequest{Phone: ptrTo("010-0000-0000")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Phone != "010-0000-0000" || updated.Group != "Acme" {
		t.Errorf("Update() = %+v", updated)
	}

	list, err := svc.List(&CustomerListRequest{Customer: "Acme Corp", Department: "QA"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("List() len = %d, expected 1", len(list))
	}
	if list, _ := svc.List(&CustomerListRequest{Department: "Sales"}); len(list) != 0 {
		t.Errorf("List(Sales) len = %d, expected 0", len(list))
	}

	if err := svc.Delete(created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.GetByID(created.ID); !response.IsNotFound(err) {
		t.Errorf("GetByID after delete error = %v, expected not found", err)
	}
}

func TestCustomerService_FindOrCreate(t *testing.T) {
	svc := NewCustomerService(newTestDB(t))

	first, created, err := svc.FindOrCreate(svc.db, &models.CustomerContact{Name: "Kim", Group: "Acme", Department: "QA"})
	if err != nil || !created {
		t.Fatalf("FindOrCreate() = %v, %v", created, err)
	}
	again, created, err := svc.FindOrCreate(svc.db, &models.CustomerContact{Name: "Kim", Group: "Acme", Department: "QA"})
	if err != nil || created {
		t.Fatalf("second FindOrCreate() = %v, %v", created, err)
	}
	if again.ID != first.ID {
		t.Errorf("ID = %d, expected %d", again.ID, first.ID)
	}
}

func TestCustomerService_Dedupe(t *testing.T) {
	db := newTestDB(t)
	svc := NewCustomerService(db)
	cars := NewCarService(db, time.UTC)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	contacts := []models.CustomerContact{
		{Name: "Kim", Company: "Acme", Department: "QA", CreatedAt: base},
		{Name: "Kim", Company: "Acme", Department: "QA", CreatedAt: base.Add(time.Hour)},
		{Name: "Kim", Company: "Acme", Department: "Sales", CreatedAt: base},
		{Name: "Lee", Company: "Acme", Department: "QA", CreatedAt: base},
	}
	for i := range contacts {
		if err := db.Create(&contacts[i]).Error; err != nil {
			t.Fatal(err)
		}
	}
	car, err := cars.Create(&CarRequest{EventType: ptrTo("ONE_TIME"), IssueDate: "2026-01-01", CustomerContactIDs: []uint{contacts[0].ID}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := svc.Dedupe()
	if err != nil {
		t.Fatalf("Dedupe() error = %v", err)
	}
	if result.Groups != 1 || len(result.Removed) != 1 || result.Removed[0] != contacts[0].ID {
		t.Errorf("Dedupe() = %+v, expected the older Kim/QA removed", result)
	}

	got, _ := cars.GetByID(car.ID)
	if len(got.CustomerContacts) != 1 || got.CustomerContacts[0].ID != contacts[1].ID {
		t.Errorf("CAR contacts = %+v, expected the kept contact", got.CustomerContacts)
	}
}
