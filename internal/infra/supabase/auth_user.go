package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

// AuthUser is the subset of GET /auth/v1/user we use.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetUser resolves an access token to its Supabase user. Rejected tokens
// yield *domain.ErrUnauthorized.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*AuthUser, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()

	var user AuthUser
	err := c.call(ctx, "supabase/auth", func() error {
		body, err := c.do(ctx, request{
			method: http.MethodGet,
			url:    c.baseURL + "/auth/v1/user",
			path:   "auth/v1/user",
			bearer: accessToken,
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &user); err != nil {
			return fmt.Errorf("decode auth user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &domain.ErrUnauthorized{Message: "session has no user"}
	}
	return &user, nil
}

// Verify implements port.SessionVerifier.
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	u, err := c.GetUser(ctx, token)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}
