package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"mustody-console/core/session"
	"mustody-console/core/utils"
)

var (
	ErrKYCNotVerified    = errors.New("kyc verification required")
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
)

type TenantRequest struct {
	Type    string         `json:"type"`
	Subject string         `json:"subject"`
	Details map[string]any `json:"details,omitempty"`
}

type TenantRequestReceipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, utils.FieldError("key", utils.ErrRequired)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tenant/settings/"+url.PathEscape(key), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) PutSetting(ctx context.Context, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return utils.FieldError("key", utils.ErrRequired)
	}
	return c.do(ctx, http.MethodPut, "/tenant/settings/"+url.PathEscape(key), map[string]any{"value": value}, nil)
}

// CheckTenantRequestEligibility is the client-side gate for tenant requests:
// the user must have verified KYC and two-factor authentication enabled.
func CheckTenantRequestEligibility(u *session.User) error {
	if u == nil {
		return session.ErrNotAuthenticated
	}
	if u.KYCStatus != session.KYCStatusVerified {
		return ErrKYCNotVerified
	}
	if !u.TwoFactorEnabled {
		return ErrTwoFactorRequired
	}
	return nil
}

// SubmitTenantRequest is refused before dispatch when user fails the gate.
func (c *Client) SubmitTenantRequest(ctx context.Context, user *session.User, req TenantRequest) (*TenantRequestReceipt, error) {
	if err := CheckTenantRequestEligibility(user); err != nil {
		return nil, err
	}
	req.Type = strings.TrimSpace(req.Type)
	req.Subject = strings.TrimSpace(req.Subject)
	if err := utils.RequireFields("type", req.Type, "subject", req.Subject); err != nil {
		return nil, err
	}
	var out TenantRequestReceipt
	if err := c.do(ctx, http.MethodPost, "/tenant/requests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
