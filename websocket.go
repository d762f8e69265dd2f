package authclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/gorilla/websocket"
)

// WSDialer opens authenticated websocket connections (live transcripts,
// device heartbeats) using the same credential convention as the Client:
// token-in-query under header mode, cookie jar under cookie mode.
type WSDialer struct {
	cfg    Config
	tokens TokenStore
	dialer *websocket.Dialer
	jar    http.CookieJar
}

// NewWSDialer builds a dialer sharing the client's configuration and token
// store.
func NewWSDialer(client *Client, cfg Config) *WSDialer {
	d := &WSDialer{
		cfg:    cfg,
		tokens: client.TokenStore(),
		dialer: websocket.DefaultDialer,
	}
	if hc, ok := client.transport.(*http.Client); ok && hc.Jar != nil {
		d.jar = hc.Jar
	}
	return d
}

// Dial connects to path on the configured backend. In header mode the
// access token travels as a query parameter per the backend convention.
func (d *WSDialer) Dial(ctx context.Context, path string) (*websocket.Conn, *http.Response, error) {
	endpoint, err := d.endpoint(path)
	if err != nil {
		return nil, nil, err
	}

	dialer := *d.dialer
	if d.cfg.GetCredentialMode() == ModeCookie {
		dialer.Jar = d.jar
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, resp, goerrors.Wrap(err, goerrors.CategoryOperation, "websocket dial failed")
	}
	return conn, resp, nil
}

func (d *WSDialer) endpoint(path string) (string, error) {
	base, err := url.Parse(d.cfg.GetBaseURL())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid base URL")
	}

	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	case "http":
		base.Scheme = "ws"
	}

	base.Path = strings.TrimRight(base.Path, "/") + path

	if d.cfg.GetCredentialMode() == ModeHeader {
		token, ok := d.tokens.AccessToken()
		if !ok {
			return "", ErrNoCredentials
		}
		q := base.Query()
		q.Set("access_token", token)
		base.RawQuery = q.Encode()
	}

	return base.String(), nil
}
