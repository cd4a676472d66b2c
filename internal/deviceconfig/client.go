package deviceconfig

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rackops/imdcfg/internal/dictutil"
	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/plan"
)

const (
	// DefaultIP is the factory-default address of an IMD
	DefaultIP = "192.168.123.123"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second

	apiRoot = "/api/"
)

// Client talks to the local HTTPS API of one IMD.
type Client struct {
	// BaseURL is the API root, e.g. "https://192.168.123.123/api/"
	BaseURL string

	// Username and Password are sent in the body of set and delete calls
	Username string
	Password string

	// HTTPClient is the underlying HTTP client. Certificate verification is
	// off because IMDs ship a self-signed certificate.
	HTTPClient *http.Client
}

// NewClient creates a client for the IMD at ip.
func NewClient(ip string) *Client {
	return NewClientWithURL("https://" + ip + apiRoot)
}

// NewClientWithURL creates a client with a full API root URL.
func NewClientWithURL(baseURL string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed device certificate
			},
		},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetAuth sets the credentials used for set and delete calls
func (c *Client) SetAuth(username, password string) {
	c.Username = username
	c.Password = password
}

// URL resolves apiPath. A path starting with "/" is taken from the host
// root; anything else is relative to BaseURL.
func (c *Client) URL(apiPath string) string {
	if !strings.HasPrefix(apiPath, "/") {
		return c.BaseURL + apiPath
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL + strings.TrimPrefix(apiPath, "/")
	}
	u.Path = apiPath
	u.RawQuery = ""
	return u.String()
}

func (c *Client) host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// body builds the JSON document for call.
func (c *Client) body(call plan.APICall) (*requestBody, error) {
	b := &requestBody{Cmd: string(call.Cmd)}
	switch call.Cmd {
	case plan.CmdAdd:
		empty := ""
		b.Token = &empty
	case plan.CmdSet, plan.CmdDelete:
		b.Username = c.Username
		b.Password = c.Password
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown cmd %q", call.Cmd))
	}

	if call.Cmd == plan.CmdDelete {
		return b, nil
	}
	data, err := wireData(call.Data)
	if err != nil {
		return nil, err
	}
	b.Data = data
	return b, nil
}

// wireData turns a payload into the JSON object sent as "data". Text
// payloads hold a literal mapping produced by a template.
func wireData(p plan.Payload) (map[string]any, error) {
	if obj, ok := p.Object(); ok {
		return obj, nil
	}
	text, ok := p.Text()
	if !ok || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	obj, err := dictutil.ParseDictLiteral(text)
	if err != nil {
		return nil, &DeviceError{
			Type:    ErrTypeValidation,
			Message: fmt.Sprintf("call data %q is not a mapping", text),
			Err:     err,
		}
	}
	return obj, nil
}

// Do sends one API call and returns the device's answer. A non-zero
// retCode is not an error here; see Classify.
func (c *Client) Do(ctx context.Context, call plan.APICall) (*Response, error) {
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodPost
	}
	target := c.URL(call.APIPath)

	var reader io.Reader
	if method != http.MethodGet {
		body, err := c.body(call)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("cannot encode request body: %v", err))
		}
		reader = bytes.NewReader(encoded)
	}

	start := time.Now()
	resp, err := c.send(ctx, method, target, "application/json", reader)
	retCode := 0
	if resp != nil {
		retCode = resp.RetCode
	}
	logging.LogAPICall(method, target, string(call.Cmd), retCode, time.Since(start), err)
	return resp, err
}

// Get issues a plain GET on apiPath.
func (c *Client) Get(ctx context.Context, apiPath string) (*Response, error) {
	return c.Do(ctx, plan.APICall{Method: http.MethodGet, APIPath: apiPath})
}

func (c *Client) send(ctx context.Context, method, target, contentType string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, NewNetworkError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		devErr := ClassifyNetworkError(err, c.host())
		devErr.Message = fmt.Sprintf("%s %s failed: %s", method, target, devErr.Message)
		return nil, devErr
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode == http.StatusUnauthorized {
		return nil, NewAuthError("authentication failed (check credentials)")
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			return nil, NewHTTPError(httpResp.StatusCode, fmt.Sprintf("unexpected status code: %d", httpResp.StatusCode))
		}
		return nil, err
	}
	return resp, nil
}
