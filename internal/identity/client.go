package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP adapter for a Clerk-style identity provider API.
// All calls carry the bearer credential; its absence is a configuration
// error at construction time, never a per-row error.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient builds a provider client. secretKey must be non-empty.
func NewClient(baseURL, secretKey string, timeout time.Duration) (*Client, error) {
	if secretKey == "" {
		return nil, errors.New("identity: secret key is required")
	}
	if baseURL == "" {
		return nil, errors.New("identity: base URL is required")
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// createUserRequest is the provider's account creation payload.
type createUserRequest struct {
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Username       string         `json:"username"`
	Password       string         `json:"password"`
	EmailAddress   []string       `json:"email_address"`
	PublicMetadata map[string]any `json:"public_metadata"`
}

// userResponse is the subset of the provider's user object we consume.
type userResponse struct {
	ID string `json:"id"`
}

// errorResponse is the provider's error envelope.
type errorResponse struct {
	Errors []struct {
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

// CreateAccount provisions a new account. The one-time credential and
// username are generated here and returned alongside the provider-issued id.
func (c *Client) CreateAccount(ctx context.Context, acct NewAccount) (*CreatedAccount, error) {
	credential, err := NewCredential()
	if err != nil {
		return nil, err
	}
	username := Username(acct.FirstName, acct.LastName)

	payload := createUserRequest{
		FirstName:      acct.FirstName,
		LastName:       acct.LastName,
		Username:       username,
		Password:       credential,
		EmailAddress:   []string{acct.Email},
		PublicMetadata: map[string]any{"role": acct.Role},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode created account: %w", err)
	}
	if user.ID == "" {
		return nil, errors.New("identity: provider returned account without id")
	}

	return &CreatedAccount{
		Account:    Account{ID: user.ID},
		Username:   username,
		Credential: credential,
	}, nil
}

// LookupByEmail finds the account holding the given address. Returns
// ErrNotFound when the provider has no match.
func (c *Client) LookupByEmail(ctx context.Context, email string) (*Account, error) {
	endpoint := c.baseURL + "/users?email_address=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	users, err := decodeUserList(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &Account{ID: users[0].ID}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

// decodeUserList accepts both response shapes the provider has used: a bare
// array, or an object with a "data" array.
func decodeUserList(r io.Reader) ([]userResponse, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var list []userResponse
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Data []userResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

// decodeError turns a non-2xx provider response into a classified
// *ProviderError. Unreadable bodies still classify on status alone.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(raw))
	var envelope errorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Errors) > 0 {
		parts := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			if e.LongMessage != "" {
				parts = append(parts, e.LongMessage)
			} else if e.Message != "" {
				parts = append(parts, e.Message)
			}
		}
		if len(parts) > 0 {
			message = strings.Join(parts, "; ")
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &ProviderError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Kind:       Classify(resp.StatusCode, message),
	}
}
