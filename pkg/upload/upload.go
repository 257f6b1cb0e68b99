// Package upload sends finished measurements to a remote results service.
//
// The service is addressed with a bearer token. Unless an explicit base URL is configured, the
// service host is taken from the token's audience claim, so a single token is all a client needs.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// Endpoint is the path measurements are POSTed to.
const Endpoint = "api/1/measurements"

// MaxResponseLength caps how much of a response body is read.
const MaxResponseLength = 100000

const (
	breakerFailures = 3
	breakerTimeout  = 30 * time.Second
)

// Format selects the request body encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatProtobuf
)

func (f Format) contentType() string {
	if f == FormatProtobuf {
		return "application/x-protobuf"
	}
	return "application/json"
}

// ParseFormat accepts "json" or "protobuf".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "protobuf", "proto", "pb":
		return FormatProtobuf, nil
	}
	return FormatJSON, fmt.Errorf("unknown upload format '%s'", s)
}

var ErrServiceUnavailable = protocol.NewError("upload service unavailable; try again later", false, true)

type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *HttpError) MayHaveSucceeded() bool {
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

func (e *HttpError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests
}

var domainRegEx = regexp.MustCompile(`^[A-Za-z0-9-.]+(:[0-9]+)?$`)

// Client uploads measurements.
type Client struct {
	// The default UserAgent is derived from the build info, but can be overridden.
	UserAgent string
	BaseURL   string
	Subject   string
	Format    Format

	authHeader string
	client     http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New returns a Client authenticated with token. If baseURL is empty, the first audience of the
// token that looks like a host name is used.
//
// The token's signature is not verified; that is the service's job.
func New(token, baseURL, userAgent string) (*Client, error) {
	token = strings.TrimSpace(token)
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("malformed upload token: %w", err)
	}
	if baseURL == "" {
		baseURL = audienceURL(claims.Audience)
		if baseURL == "" {
			return nil, fmt.Errorf("upload token has no usable audience; configure an upload URL")
		}
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid upload URL '%s'", baseURL)
	}

	c := &Client{
		UserAgent:  buildUserAgent(userAgent),
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Subject:    claims.Subject,
		authHeader: "Bearer " + token,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "upload",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warning("Upload circuit %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Rejected requests say nothing about the health of the service.
			var httpErr *HttpError
			return err == nil || (errors.As(err, &httpErr) && httpErr.Code < 500)
		},
	})
	return c, nil
}

func audienceURL(audiences jwt.ClaimStrings) string {
	for _, aud := range audiences {
		if strings.HasPrefix(aud, "https://") || strings.HasPrefix(aud, "http://") {
			if u, err := url.Parse(aud); err == nil && domainRegEx.MatchString(u.Host) {
				return u.Scheme + "://" + u.Host
			}
			continue
		}
		if domainRegEx.MatchString(aud) && strings.Contains(aud, ".") {
			return "https://" + aud
		}
	}
	return ""
}

func buildUserAgent(app string) string {
	if app != "" {
		return app
	}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return "forcemeter"
	}
	path := strings.Split(build.Path, "/")
	app = path[len(path)-1]
	if build.Main.Version != "(devel)" && build.Main.Version != "" {
		app = fmt.Sprintf("%s/%s", app, build.Main.Version)
	}
	return app
}

// Upload sends m and returns the response body.
func (c *Client) Upload(ctx context.Context, m *measurement.Measurement) ([]byte, error) {
	var body []byte
	var err error
	if c.Format == FormatProtobuf {
		body, err = m.MarshalBinary()
	} else {
		body, err = json.Marshal(m)
	}
	if err != nil {
		return nil, err
	}
	rsp, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, Endpoint, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrServiceUnavailable
	}
	if err == nil {
		log.Info("Uploaded measurement %s", m.ID)
	}
	return rsp, err
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", c.BaseURL, endpoint)
	log.Debug("Sending request to %s (%d bytes)", url, len(body))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: false}
	}
	request.Header.Set("User-Agent", c.UserAgent)
	request.Header.Set("Content-Type", c.Format.contentType())
	request.Header.Set("Authorization", c.authHeader)
	request.Header.Set("Accept", "application/json")

	result, err := c.client.Do(request)
	if err != nil {
		return nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}
	defer result.Body.Close()

	reader := io.LimitedReader{R: result.Body, N: MaxResponseLength + 1}
	body, err = io.ReadAll(&reader)
	if err != nil {
		return nil, &protocol.CommandError{Err: err, PossibleSuccess: true, PossibleTemporary: false}
	}
	if len(body) > MaxResponseLength {
		return nil, protocol.NewError("response exceeds maximum length", true, true)
	}

	log.Debug("Server returned %d: %s: %s", result.StatusCode, http.StatusText(result.StatusCode), body)
	if result.StatusCode == http.StatusOK || result.StatusCode == http.StatusCreated {
		return body, nil
	}
	return nil, &HttpError{Code: result.StatusCode, Message: string(body)}
}
