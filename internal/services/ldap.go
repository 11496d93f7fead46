package services

import (
	"crypto/tls"
	"fmt"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/models"
	"github.com/go-ldap/ldap/v3"
)

// LDAPService authenticates against the directory configured either in
// system_configs (ldap_* rows, when ldap_host is set) or in the config file.
type LDAPService struct {
	file     *config.LDAPConfig
	settings *SystemConfigService
}

func NewLDAPService(cfg *config.LDAPConfig, settings *SystemConfigService) *LDAPService {
	if cfg == nil {
		cfg = &config.LDAPConfig{}
	}
	return &LDAPService{file: cfg, settings: settings}
}

// effective returns the active directory settings. Rows in system_configs
// win over the file once an admin has saved a host.
func (s *LDAPService) effective() config.LDAPConfig {
	cfg := *s.file
	if s.settings == nil {
		return cfg
	}
	db := s.settings.GetLDAPConfig()
	if db.Host == "" {
		return cfg
	}
	cfg.Enabled = db.Enabled
	cfg.Host = db.Host
	cfg.Port = db.Port
	cfg.BaseDN = db.BaseDN
	cfg.BindDN = db.BindDN
	cfg.BindPassword = s.settings.GetWithDefault("ldap_bind_password", "")
	cfg.UserFilter = db.UserFilter
	cfg.UseSSL = db.UseSSL
	return cfg
}

func (s *LDAPService) IsEnabled() bool {
	cfg := s.effective()
	return cfg.Enabled && cfg.Host != ""
}

// DefaultRole is the role given to directory users on first login.
func (s *LDAPService) DefaultRole() string {
	if models.ValidRole(s.file.DefaultRole) {
		return s.file.DefaultRole
	}
	return models.RoleStaff
}

// Authenticate authenticates a user against LDAP
func (s *LDAPService) Authenticate(username, password string) (*LDAPUser, error) {
	cfg := s.effective()
	if !cfg.Enabled {
		return nil, fmt.Errorf("LDAP is not enabled")
	}
	if password == "" {
		return nil, fmt.Errorf("invalid credentials")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var conn *ldap.Conn
	var err error
	if cfg.UseSSL {
		conn, err = ldap.DialURL("ldaps://"+addr, ldap.DialWithTLSConfig(&tls.Config{ServerName: cfg.Host}))
	} else {
		conn, err = ldap.DialURL("ldap://" + addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}

	searchRequest := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		userSearchFilter(cfg.UserFilter, username),
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName", "department"},
		nil,
	)
	result, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("user not found in LDAP")
	}
	if len(result.Entries) > 1 {
		return nil, fmt.Errorf("multiple users found in LDAP")
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return ldapUserFromEntry(entry), nil
}

func userSearchFilter(filter, username string) string {
	if filter == "" {
		filter = "(uid=%s)"
	}
	return fmt.Sprintf(filter, ldap.EscapeFilter(username))
}

func ldapUserFromEntry(entry *ldap.Entry) *LDAPUser {
	user := &LDAPUser{
		DN:         entry.DN,
		Username:   entry.GetAttributeValue("uid"),
		Email:      entry.GetAttributeValue("mail"),
		Name:       entry.GetAttributeValue("cn"),
		Department: entry.GetAttributeValue("department"),
	}
	// Active Directory
	if user.Username == "" {
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}
	return user
}

type LDAPUser struct {
	DN         string
	Username   string
	Email      string
	Name       string
	Department string
}
