package authclient

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ClientConfig is the concrete Config used by most deployments.
type ClientConfig struct {
	BaseURL        string
	CredentialMode CredentialMode
	IdentityPath   string
	LoginPath      string
	LogoutPath     string
	RefreshPath    string
	CacheTTL       time.Duration
	MaxRetries     int
	DeviceID       string
}

var _ Config = (*ClientConfig)(nil)

// DefaultConfig returns a ClientConfig with the conventional go-auth
// endpoint layout and a seconds-level cache TTL.
func DefaultConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:        baseURL,
		CredentialMode: ModeCookie,
		IdentityPath:   "/v1/whoami",
		LoginPath:      "/v1/auth/login",
		LogoutPath:     "/v1/auth/logout",
		RefreshPath:    "/v1/auth/refresh",
		CacheTTL:       5 * time.Second,
		MaxRetries:     3,
		DeviceID:       newContextID(),
	}
}

// Validate checks the configuration before a Client is built from it.
func (c ClientConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.RequestURL),
		validation.Field(&c.CredentialMode, validation.Required, validation.In(ModeCookie, ModeHeader)),
		validation.Field(&c.IdentityPath, validation.Required),
		validation.Field(&c.LoginPath, validation.Required),
		validation.Field(&c.RefreshPath, validation.Required),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
	)
}

func (c *ClientConfig) GetBaseURL() string                { return c.BaseURL }
func (c *ClientConfig) GetCredentialMode() CredentialMode { return c.CredentialMode }
func (c *ClientConfig) GetIdentityPath() string           { return c.IdentityPath }
func (c *ClientConfig) GetLoginPath() string              { return c.LoginPath }
func (c *ClientConfig) GetLogoutPath() string             { return c.LogoutPath }
func (c *ClientConfig) GetRefreshPath() string            { return c.RefreshPath }
func (c *ClientConfig) GetCacheTTL() time.Duration        { return c.CacheTTL }
func (c *ClientConfig) GetMaxRetries() int                { return c.MaxRetries }
func (c *ClientConfig) GetDeviceID() string               { return c.DeviceID }
