package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mustody-console/core/rbac"
)

const (
	KYCStatusVerified = "verified"
	KYCStatusPending  = "pending"
	KYCStatusRejected = "rejected"
)

var ErrInvalidUser = errors.New("invalid user payload")

type Membership struct {
	Role   string `json:"role"`
	Tenant string `json:"tenant"`
}

// User is the resolved identity snapshot. It is persisted as JSON next to the
// token and must only exist together with one.
type User struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Email            string       `json:"email"`
	PrimaryRole      string       `json:"primary_role"`
	Memberships      []Membership `json:"memberships"`
	EmailVerified    bool         `json:"email_verified"`
	AvatarURL        string       `json:"avatar_url,omitempty"`
	KYCStatus        string       `json:"kyc_status,omitempty"`
	TwoFactorEnabled bool         `json:"two_factor_enabled"`
}

// EffectiveRoles is {PrimaryRole} ∪ {m.Role for m in Memberships}.
func (u *User) EffectiveRoles() []string {
	if u == nil {
		return nil
	}
	membershipRoles := make([]string, 0, len(u.Memberships))
	for _, m := range u.Memberships {
		membershipRoles = append(membershipRoles, m.Role)
	}
	return rbac.EffectiveRoles(u.PrimaryRole, membershipRoles)
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Memberships != nil {
		out.Memberships = make([]Membership, len(u.Memberships))
		copy(out.Memberships, u.Memberships)
	}
	return &out
}

// wireUser accepts the shapes the backend has used for user payloads: numeric
// or string ids, "role" instead of "primary_role", camelCase keys.
type wireUser struct {
	ID                json.RawMessage  `json:"id"`
	Name              string           `json:"name"`
	FullName          string           `json:"full_name"`
	Email             string           `json:"email"`
	PrimaryRole       string           `json:"primary_role"`
	PrimaryRoleCamel  string           `json:"primaryRole"`
	Role              string           `json:"role"`
	Memberships       []wireMembership `json:"memberships"`
	EmailVerified     bool             `json:"email_verified"`
	EmailVerifiedAlt  bool             `json:"emailVerified"`
	AvatarURL         string           `json:"avatar_url"`
	AvatarURLCamel    string           `json:"avatarUrl"`
	KYCStatus         string           `json:"kyc_status"`
	KYCStatusCamel    string           `json:"kycStatus"`
	TwoFactorEnabled  bool             `json:"two_factor_enabled"`
	TwoFactorEnabled2 bool             `json:"twoFactorEnabled"`
}

type wireMembership struct {
	Role     string          `json:"role"`
	Tenant   json.RawMessage `json:"tenant"`
	TenantID json.RawMessage `json:"tenant_id"`
}

// ParseUser decodes and normalizes a user payload. An id and a primary role
// are required; roles are lowercased.
func ParseUser(raw []byte) (*User, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: empty", ErrInvalidUser)
	}
	var w wireUser
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	u := &User{
		ID:               scalarString(w.ID),
		Name:             firstNonEmpty(w.Name, w.FullName),
		Email:            w.Email,
		PrimaryRole:      firstNonEmpty(w.PrimaryRole, w.PrimaryRoleCamel, w.Role),
		EmailVerified:    w.EmailVerified || w.EmailVerifiedAlt,
		AvatarURL:        firstNonEmpty(w.AvatarURL, w.AvatarURLCamel),
		KYCStatus:        firstNonEmpty(w.KYCStatus, w.KYCStatusCamel),
		TwoFactorEnabled: w.TwoFactorEnabled || w.TwoFactorEnabled2,
	}
	for _, m := range w.Memberships {
		tenant := scalarString(m.Tenant)
		if tenant == "" {
			tenant = tenantRef(m.Tenant)
		}
		if tenant == "" {
			tenant = scalarString(m.TenantID)
		}
		u.Memberships = append(u.Memberships, Membership{Role: m.Role, Tenant: tenant})
	}
	if err := u.Normalize(); err != nil {
		return nil, err
	}
	return u, nil
}

// Normalize trims identity fields, lowercases roles and KYC status and drops
// memberships without a role. An id and a primary role are required.
func (u *User) Normalize() error {
	if u == nil {
		return fmt.Errorf("%w: empty", ErrInvalidUser)
	}
	u.ID = strings.TrimSpace(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	u.AvatarURL = strings.TrimSpace(u.AvatarURL)
	u.PrimaryRole = rbac.NormalizeRole(u.PrimaryRole)
	u.KYCStatus = strings.ToLower(strings.TrimSpace(u.KYCStatus))
	if u.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidUser)
	}
	if u.PrimaryRole == "" {
		return fmt.Errorf("%w: missing primary role", ErrInvalidUser)
	}
	var memberships []Membership
	for _, m := range u.Memberships {
		role := rbac.NormalizeRole(m.Role)
		if role == "" {
			continue
		}
		memberships = append(memberships, Membership{Role: role, Tenant: strings.TrimSpace(m.Tenant)})
	}
	u.Memberships = memberships
	return nil
}

// scalarString renders a JSON string or number as a string.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// tenantRef extracts the id from an embedded tenant object.
func tenantRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		ID   json.RawMessage `json:"id"`
		Slug string          `json:"slug"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if id := scalarString(obj.ID); id != "" {
		return id
	}
	return strings.TrimSpace(obj.Slug)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// State is an immutable view of the session handed to observers and views.
type State struct {
	Authenticated  bool            `json:"authenticated"`
	Token          string          `json:"-"`
	User           *User           `json:"user,omitempty"`
	EffectiveRoles []string        `json:"effective_roles"`
	Menu           []rbac.MenuItem `json:"menu"`
}
