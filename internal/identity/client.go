// Package identity talks to the hosted identity service and keeps the signed-in
// user of one visitor.
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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/campus-portal/config"
	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/middleware"
)

// Credential is a federated provider credential obtained by the browser.
type Credential struct {
	ProviderID string `form:"provider_id" json:"provider_id"`
	IDToken    string `form:"id_token" json:"id_token"`
}

// Client handles communication with the identity toolkit REST API.
type Client struct {
	apiKey     string
	baseURL    string
	tokenURL   string
	requestURI string
	httpClient *http.Client
}

// NewClient creates a new identity client
func NewClient(cfg config.IdentityConfig) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		tokenURL:   cfg.TokenEndpoint,
		requestURI: cfg.FederatedRequestURI,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	RefreshToken string `json:"refreshToken"`
}

func (r accountResponse) user() *domain.User {
	return &domain.User{
		UID:          r.LocalID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		RefreshToken: r.RefreshToken,
	}
}

// SignInWithPassword authenticates an email/password pair.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.User, error) {
	var resp accountResponse
	err := c.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.user(), nil
}

// SignUp creates an email/password account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*domain.User, error) {
	var resp accountResponse
	err := c.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.user(), nil
}

// SignInWithIdp exchanges a federated provider credential for a session.
func (c *Client) SignInWithIdp(ctx context.Context, cred Credential) (*domain.User, error) {
	postBody := url.Values{}
	postBody.Set("id_token", cred.IDToken)
	postBody.Set("providerId", cred.ProviderID)

	var resp accountResponse
	err := c.post(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          c.requestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.user(), nil
}

// SendPasswordReset asks the service to email a password reset link.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.post(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

type tokenResponse struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a fresh one. Only UID and RefreshToken
// are populated on the returned user.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.refresh", trace.WithAttributes(
		attribute.String("layer", "identity"),
	))
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?key="+url.QueryEscape(c.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &domain.User{UID: resp.UserID, RefreshToken: resp.RefreshToken}, nil
}

func (c *Client) post(ctx context.Context, method string, body any, out any) error {
	ctx, span := middleware.StartSpan(ctx, "identity."+method, trace.WithAttributes(
		attribute.String("layer", "identity"),
	))
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL + "/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, out); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &Error{Code: CodeNetwork, Message: "Could not reach the identity service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var env errorEnvelope
		if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
			return &Error{
				Code:    CodeInternal,
				Message: fmt.Sprintf("Identity service error: %d", resp.StatusCode),
			}
		}
		return fromServiceMessage(env.Error.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
