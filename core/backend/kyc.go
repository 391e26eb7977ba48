package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mustody-console/core/session"
	"mustody-console/core/utils"
)

var ErrInvalidKYCStatus = errors.New("invalid kyc status")

type KYCDocument struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type KYCApplication struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	FullName    string        `json:"full_name"`
	Status      string        `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Documents   []KYCDocument `json:"documents,omitempty"`
}

type KYCStatusUpdate struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (c *Client) ListKYC(ctx context.Context, status string) ([]KYCApplication, error) {
	path := "/admin/kyc"
	if status = strings.ToLower(strings.TrimSpace(status)); status != "" {
		path += "?" + url.Values{"status": {status}}.Encode()
	}
	var resp listEnvelope[KYCApplication]
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.items(), nil
}

func (c *Client) GetKYC(ctx context.Context, id string) (*KYCApplication, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, utils.FieldError("id", utils.ErrRequired)
	}
	var out KYCApplication
	if err := c.do(ctx, http.MethodGet, "/admin/kyc/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateKYCStatus requires a reason when rejecting.
func (c *Client) UpdateKYCStatus(ctx context.Context, id string, upd KYCStatusUpdate) error {
	if id = strings.TrimSpace(id); id == "" {
		return utils.FieldError("id", utils.ErrRequired)
	}
	upd.Status = strings.ToLower(strings.TrimSpace(upd.Status))
	upd.Reason = strings.TrimSpace(upd.Reason)
	switch upd.Status {
	case session.KYCStatusVerified, session.KYCStatusPending:
	case session.KYCStatusRejected:
		if upd.Reason == "" {
			return utils.FieldError("reason", utils.ErrRequired)
		}
	case "":
		return utils.FieldError("status", utils.ErrRequired)
	default:
		return utils.FieldError("status", ErrInvalidKYCStatus)
	}
	return c.do(ctx, http.MethodPut, "/admin/kyc/"+url.PathEscape(id)+"/status", upd, nil)
}

// DownloadKYCDocument streams the document body into w and returns its
// content type.
func (c *Client) DownloadKYCDocument(ctx context.Context, id, docID string, w io.Writer) (string, error) {
	id, docID = strings.TrimSpace(id), strings.TrimSpace(docID)
	if err := utils.RequireFields("id", id, "document_id", docID); err != nil {
		return "", err
	}
	resp, err := c.send(ctx, http.MethodGet, "/admin/kyc/"+url.PathEscape(id)+"/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download document: %w", err)
	}
	return resp.Header.Get("Content-Type"), nil
}
