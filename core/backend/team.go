package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mustody-console/core/rbac"
	"mustody-console/core/utils"
)

var ErrUnknownRole = errors.New("unknown role")

type Invitation struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (c *Client) InviteMember(ctx context.Context, inv Invitation) error {
	inv.Email = strings.TrimSpace(inv.Email)
	if err := utils.ValidateEmail(inv.Email); err != nil {
		return utils.FieldError("email", err)
	}
	known, unknown := rbac.NormalizeRoleNames([]string{inv.Role})
	if len(unknown) > 0 {
		return utils.FieldError("role", fmt.Errorf("%w: %s", ErrUnknownRole, unknown[0]))
	}
	if len(known) == 0 {
		return utils.FieldError("role", utils.ErrRequired)
	}
	inv.Role = known[0]
	return c.do(ctx, http.MethodPost, "/team/invitations", inv, nil)
}

func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var resp listEnvelope[Member]
	if err := c.do(ctx, http.MethodGet, "/team/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp.items(), nil
}
