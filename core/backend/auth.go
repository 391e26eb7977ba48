package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mustody-console/core/session"
	"mustody-console/core/utils"
)

var ErrTwoFactorCodeRequired = errors.New("two-factor code required")

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// LoginResult carries the token and the resolved user returned by the backend.
type LoginResult struct {
	Token string
	User  *session.User
}

type tokenResponse struct {
	Token       string          `json:"token"`
	AccessToken string          `json:"access_token"`
	User        json.RawMessage `json:"user"`
	Requires2FA bool            `json:"requires_2fa"`
}

func (r tokenResponse) token() string {
	if t := strings.TrimSpace(r.Token); t != "" {
		return t
	}
	return strings.TrimSpace(r.AccessToken)
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := utils.RequireFields("email", req.Email, "password", req.Password); err != nil {
		return nil, err
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return nil, utils.FieldError("email", err)
	}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	tok := resp.token()
	if tok == "" {
		if resp.Requires2FA {
			return nil, ErrTwoFactorCodeRequired
		}
		return nil, errors.New("login response carries no token")
	}
	out := &LoginResult{Token: tok}
	if len(resp.User) > 0 && string(resp.User) != "null" {
		u, err := session.ParseUser(resp.User)
		if err != nil {
			return nil, fmt.Errorf("login user: %w", err)
		}
		out.User = u
	}
	return out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// RefreshToken exchanges the current bearer token for a new one.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &resp); err != nil {
		return "", err
	}
	tok := resp.token()
	if tok == "" {
		return "", errors.New("refresh response carries no token")
	}
	return tok, nil
}

type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

func (c *Client) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var raw struct {
		Secret     string `json:"secret"`
		OTPAuthURL string `json:"otpauth_url"`
		URI        string `json:"uri"`
		QRURI      string `json:"qr_uri"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/2fa/setup", nil, &raw); err != nil {
		return nil, err
	}
	out := &TwoFactorSetup{Secret: strings.TrimSpace(raw.Secret)}
	for _, v := range []string{raw.OTPAuthURL, raw.URI, raw.QRURI} {
		if v = strings.TrimSpace(v); v != "" {
			out.OTPAuthURL = v
			break
		}
	}
	if out.OTPAuthURL == "" {
		return nil, errors.New("2fa setup response carries no otpauth url")
	}
	return out, nil
}
