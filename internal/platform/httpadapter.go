package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
)

const uploadTimeout = 10 * time.Minute

// HTTPAdapter talks to a platform's ingest endpoint over plain HTTP. The
// wire shape is the generic ingest contract every platform gateway in the
// fleet speaks; platform-specific encoders live behind those gateways.
type HTTPAdapter struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTPAdapter(name, endpoint string) *HTTPAdapter {
	return &HTTPAdapter{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: uploadTimeout},
	}
}

var _ Adapter = (*HTTPAdapter)(nil)

func (a *HTTPAdapter) Name() string     { return a.name }
func (a *HTTPAdapter) Endpoint() string { return a.endpoint }

type uploadRequest struct {
	ContentRef  string   `json:"content_ref"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

func (a *HTTPAdapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	body, err := json.Marshal(uploadRequest{
		ContentRef:  in.ContentRef,
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, "failed to encode upload request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/uploads", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, "failed to build upload request")
	}
	req.Header.Set("Content-Type", "application/json")
	if in.Session != nil {
		attachSessionCookies(req, in.Session.Blob)
	}

	client := a.client
	if in.ProxyURL != "" {
		proxied, perr := a.proxiedClient(in.ProxyURL)
		if perr != nil {
			return nil, perr
		}
		client = proxied
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, apperrors.Wrap(err, apperrors.KindNetwork, "upload request failed")
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, a.name); err != nil {
		return nil, err
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindPlatform, "unreadable upload response")
	}
	return &UploadResult{ExternalID: out.ID}, nil
}

func (a *HTTPAdapter) CheckReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (a *HTTPAdapter) proxiedClient(proxyURL string) (*http.Client, error) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, "bad egress proxy url")
	}
	return &http.Client{
		Timeout:   uploadTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
	}, nil
}

// classifyStatus maps the gateway status to the failure taxonomy the
// cascade routes on.
func classifyStatus(resp *http.Response, platform string) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuth, fmt.Sprintf("%s rejected credentials (%d)", platform, code))
	case code == http.StatusTooManyRequests:
		return apperrors.RateLimited(
			fmt.Errorf("%s returned 429", platform),
			retryAfter(resp.Header.Get("Retry-After")),
		)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("%s rejected the post (%d)", platform, code))
	case code >= 500:
		return apperrors.New(apperrors.KindNetwork, fmt.Sprintf("%s server error (%d)", platform, code))
	default:
		return apperrors.New(apperrors.KindPlatform, fmt.Sprintf("%s returned unexpected status %d", platform, code))
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

type sessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func attachSessionCookies(req *http.Request, blob []byte) {
	var cookies []sessionCookie
	if err := json.Unmarshal(blob, &cookies); err != nil {
		return
	}
	for _, ck := range cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
}

// ParseEndpoints parses PLATFORM_ENDPOINTS: comma-separated name=base_url
// pairs, one adapter per pair.
func ParseEndpoints(raw string) ([]Adapter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var adapters []Adapter
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, apperrors.New(apperrors.KindValidation, "malformed platform endpoint entry: "+entry)
		}
		adapters = append(adapters, NewHTTPAdapter(parts[0], parts[1]))
	}
	return adapters, nil
}
