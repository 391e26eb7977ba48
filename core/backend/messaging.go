package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"mustody-console/core/utils"
)

type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Body    string `json:"body"`
}

type TemplateInput struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Body    string `json:"body"`
}

type Recipient struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"-"`
}

type SendRequest struct {
	TemplateID string            `json:"template_id"`
	Recipients []Recipient       `json:"recipients"`
	Variables  map[string]string `json:"variables,omitempty"`
}

type SendResult struct {
	Accepted int    `json:"accepted"`
	BatchID  string `json:"batch_id"`
}

type MessagingStats struct {
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

func (c *Client) CreateTemplate(ctx context.Context, in TemplateInput) (*Template, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Channel = strings.ToLower(strings.TrimSpace(in.Channel))
	if in.Channel == "" {
		in.Channel = "sms"
	}
	if err := utils.RequireFields("name", in.Name, "body", in.Body); err != nil {
		return nil, err
	}
	var out Template
	if err := c.do(ctx, http.MethodPost, "/messaging/templates", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var resp listEnvelope[Template]
	if err := c.do(ctx, http.MethodGet, "/messaging/templates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.items(), nil
}

// SendMessage validates and normalizes every recipient before anything is
// sent; one bad number rejects the whole batch.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	if err := utils.RequireFields("template_id", req.TemplateID); err != nil {
		return nil, err
	}
	if len(req.Recipients) == 0 {
		return nil, utils.FieldError("recipients", utils.ErrRequired)
	}
	normalized := make([]Recipient, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		phone, err := utils.ValidatePhone(r.Phone, r.CountryCode)
		if err != nil {
			return nil, utils.FieldError(fmt.Sprintf("recipients[%d].phone", i), err)
		}
		normalized = append(normalized, Recipient{Phone: phone})
	}
	req.Recipients = normalized
	var out SendResult
	if err := c.do(ctx, http.MethodPost, "/messaging/send", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MessagingStats(ctx context.Context) (*MessagingStats, error) {
	var out MessagingStats
	if err := c.do(ctx, http.MethodGet, "/messaging/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
