package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"mustody-console/core/notify"
	"mustody-console/core/push"
	"mustody-console/core/utils"
)

func (c *Client) ListNotifications(ctx context.Context) ([]notify.Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &raw); err != nil {
		return nil, err
	}
	return notify.ParseList(raw)
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return utils.FieldError("id", utils.ErrRequired)
	}
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

func (c *Client) SubscribePush(ctx context.Context, sub push.Subscription) error {
	if err := sub.Validate(); err != nil {
		return utils.FieldError("subscription", err)
	}
	return c.do(ctx, http.MethodPost, "/notifications/subscribe", sub, nil)
}

func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey      string `json:"publicKey"`
		PublicKeySnake string `json:"public_key"`
		Key            string `json:"key"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/vapid-public-key", nil, &resp); err != nil {
		return "", err
	}
	for _, v := range []string{resp.PublicKey, resp.PublicKeySnake, resp.Key} {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", errors.New("vapid public key missing from response")
}
