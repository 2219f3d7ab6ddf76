package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// User is the subset of the user view the client relies on.
type User struct {
	ID              string `json:"_id"`
	Username        string `json:"username"`
	Mobile          string `json:"mobile,omitempty"`
	Email           string `json:"email,omitempty"`
	Role            string `json:"role"`
	BusinessID      string `json:"businessId,omitempty"`
	ProfileComplete bool   `json:"profileComplete"`
}

type sessionResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, http.MethodPost, path, "application/json", body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Register starts a registration and returns the channel the code went to.
func (c *Client) Register(ctx context.Context, username, password, mobile, email string) (string, error) {
	var out struct {
		Via string `json:"via"`
	}
	err := c.postJSON(ctx, "/auth/register", map[string]string{
		"username": username, "password": password, "mobile": mobile, "email": email,
	}, &out)
	return out.Via, err
}

// VerifyMobile confirms a mobile registration code and signs in.
func (c *Client) VerifyMobile(ctx context.Context, mobile, code string) (*User, error) {
	return c.openSession(ctx, "/auth/verify-otp", map[string]string{"mobile": mobile, "otp": code})
}

// VerifyEmail confirms an email registration code and signs in.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*User, error) {
	return c.openSession(ctx, "/auth/verify-email-otp", map[string]string{"email": email, "otp": code})
}

// Login signs in with a username, email or mobile and a password.
func (c *Client) Login(ctx context.Context, identifier, password string) (*User, error) {
	return c.openSession(ctx, "/auth/login", map[string]string{"identifier": identifier, "password": password})
}

func (c *Client) openSession(ctx context.Context, path string, in any) (*User, error) {
	var out sessionResponse
	if err := c.postJSON(ctx, path, in, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out.User, nil
}

// Logout clears the refresh cookie and the local token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.postJSON(ctx, "/auth/logout", struct{}{}, nil)
	c.SetToken("")
	return err
}
