// Package gop scrapes the municipal "Gestión de Obras Privadas" portal.
//
// The portal is a server-rendered Yii2 application: login is a plain
// form POST guarded by a CSRF token, the case grids are <table> markup,
// pagination and filtering are ordinary links and GET forms. Protected
// pages silently redirect back to the login page when the session
// expires, so every navigation goes through GetProtected which
// re-authenticates once before giving up.
package gop

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cpim-backend/lib/htmlutil"
	"cpim-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/gop")

// AuthError reports a failed login, carrying whatever inline error
// text the portal rendered (when any was found).
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gop: authentication failed: %s", e.Message)
}

type Options struct {
	BaseUrl  string
	Username string
	Password string
	// zero value means DefaultSelectors
	Selectors Selectors
	// when set, page bodies are dumped here on login failure
	DiagnosticsDir string
	Timeout        time.Duration
}

type Client struct {
	baseUrl        *url.URL
	http           *resty.Client
	sel            Selectors
	username       string
	password       string
	diagnosticsDir string
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("gop: missing portal credentials")
	}

	sel := opts.Selectors
	if sel.TableRows == "" {
		sel = DefaultSelectors()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		// the portal's responsiveness is not under our control
		timeout = time.Second * 45
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "scrapers/gop/http")

	return &Client{
		baseUrl:        baseUrl,
		http:           client,
		sel:            sel,
		username:       opts.Username,
		password:       opts.Password,
		diagnosticsDir: opts.DiagnosticsDir,
	}, nil
}

func document(res *resty.Response) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// probeInputName tries a prioritized selector list against the document
// and reports the form name of the first input it can locate.
func probeInputName(doc *goquery.Document, selectors []string) (string, bool) {
	for _, sel := range selectors {
		input := doc.Find(sel).First()
		if input.Length() == 0 {
			continue
		}
		name := input.AttrOr("name", "")
		if name != "" {
			return name, true
		}
	}
	return "", false
}

func (c *Client) onLoginPage(res *resty.Response) bool {
	raw := res.RawResponse
	if raw == nil || raw.Request == nil || raw.Request.URL == nil {
		return false
	}
	return strings.Contains(strings.ToLower(raw.Request.URL.Path), c.sel.LoginMarker)
}

func (c *Client) loginErrorText(doc *goquery.Document) string {
	for _, sel := range c.sel.LoginErrors {
		text := htmlutil.SelectionText(doc.Find(sel))
		if text != "" {
			return text
		}
	}
	return ""
}

// the screenshot-on-failure analogue: keep the raw page around so a
// human can see what the portal actually rendered.
func (c *Client) dumpPage(name string, body []byte) {
	if c.diagnosticsDir == "" {
		return
	}
	err := os.MkdirAll(c.diagnosticsDir, 0o755)
	if err != nil {
		return
	}
	filename := fmt.Sprintf("%s_%s.html", name, time.Now().Format("20060102-150405"))
	_ = os.WriteFile(filepath.Join(c.diagnosticsDir, filename), body, 0o644)
}

// Login authenticates against the portal. Field names are discovered by
// probing selector lists because the portal markup is not stable; hidden
// inputs (the CSRF token among them) are carried over verbatim. Success
// is asserted by checking the post-submit URL no longer looks like the
// login page.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(c.sel.LoginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	doc, err := document(res)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return err
	}

	userField, ok := probeInputName(doc, c.sel.UserInputs)
	if !ok {
		c.dumpPage("login_screen", res.Body())
		span.SetStatus(codes.Error, "username field not found")
		return &AuthError{Message: "could not locate the username field"}
	}
	passField, ok := probeInputName(doc, c.sel.PassInputs)
	if !ok {
		c.dumpPage("login_screen", res.Body())
		span.SetStatus(codes.Error, "password field not found")
		return &AuthError{Message: "could not locate the password field"}
	}

	form := map[string]string{
		userField: c.username,
		passField: c.password,
	}
	doc.Find(c.sel.HiddenInputs).Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" || name == userField || name == passField {
			return
		}
		form[name] = input.AttrOr("value", "")
	})

	res, err = c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(c.sel.LoginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit login form")
		return err
	}

	if c.onLoginPage(res) {
		c.dumpPage("login_failed", res.Body())
		message := "still on login page after submit, check credentials"
		if doc, err := document(res); err == nil {
			if text := c.loginErrorText(doc); text != "" {
				message = text
			}
		}
		span.SetStatus(codes.Error, message)
		return &AuthError{Message: message}
	}

	return nil
}

// GetProtected fetches a page that requires a session. A redirect back
// to the login page triggers one transparent re-authentication; a
// second bounce fails the navigation.
func (c *Client) GetProtected(ctx context.Context, path string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:GetProtected")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}

	if c.onLoginPage(res) {
		err := c.Login(ctx)
		if err != nil {
			span.SetStatus(codes.Error, "re-authentication failed")
			return nil, fmt.Errorf("gop: re-authentication failed: %w", err)
		}
		res, err = c.http.R().
			SetContext(ctx).
			Get(path)
		if err != nil {
			span.SetStatus(codes.Error, "failed to fetch after re-auth")
			return nil, err
		}
		if c.onLoginPage(res) {
			span.SetStatus(codes.Error, "bounced to login twice")
			return nil, fmt.Errorf("gop: still redirected to login after re-authentication: %s", path)
		}
	}

	return document(res)
}
