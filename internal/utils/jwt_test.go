package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "car-system-test-secret"

func init() {
	SetJWTSecret(testSecret)
}

func TestToken_RoleClaims(t *testing.T) {
	tests := []struct {
		userID   uint
		username string
		role     string
	}{
		{1, "admin", models.RoleAdmin},
		{7, "park.manager", models.RoleManager},
		{42, "kim.staff", models.RoleStaff},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, err := GenerateToken(tt.userID, tt.username, tt.role, 2)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			claims, err := ParseToken(token)
			if err != nil {
				t.Fatalf("ParseToken() error = %v", err)
			}
			if claims.UserID != tt.userID || claims.Username != tt.username {
				t.Errorf("claims = %d/%q, expected %d/%q", claims.UserID, claims.Username, tt.userID, tt.username)
			}
			if claims.Role != tt.role || !models.ValidRole(claims.Role) {
				t.Errorf("Role = %q, expected %q", claims.Role, tt.role)
			}
			if claims.Issuer != "car-system" {
				t.Errorf("Issuer = %q, expected car-system", claims.Issuer)
			}
		})
	}
}

func TestGenerateToken_ExpireHours(t *testing.T) {
	token, _ := GenerateToken(1, "admin", models.RoleAdmin, 24)
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 24*time.Hour {
		t.Errorf("lifetime = %v, expected 24h", got)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	expired, _ := GenerateToken(1, "admin", models.RoleAdmin, -1)

	valid, _ := GenerateToken(42, "kim.staff", models.RoleStaff, 2)
	parts := strings.Split(valid, ".")
	// the payload of a STAFF token swapped for an ADMIN one keeps the STAFF signature
	adminToken, _ := GenerateToken(42, "kim.staff", models.RoleAdmin, 2)
	forged := parts[0] + "." + strings.Split(adminToken, ".")[1] + "." + parts[2]

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: 1,
		Role:   models.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"forged role", forged},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if claims, err := ParseToken(tt.token); err == nil {
				t.Errorf("ParseToken() = %+v, expected error", claims)
			}
		})
	}
}

func TestSetJWTSecret_InvalidatesTokens(t *testing.T) {
	defer SetJWTSecret(testSecret)

	token, _ := GenerateToken(1, "admin", models.RoleAdmin, 2)
	SetJWTSecret("rotated")
	if _, err := ParseToken(token); err == nil {
		t.Error("tokens signed before a secret change should not parse")
	}
	fresh, _ := GenerateToken(1, "admin", models.RoleAdmin, 2)
	if _, err := ParseToken(fresh); err != nil {
		t.Errorf("ParseToken(fresh) error = %v", err)
	}
}
