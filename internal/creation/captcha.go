package creation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ehmo/sovi/internal/domain"
)

// CaptchaClient is a thin JSON-over-HTTP client to an external CAPTCHA
// solver, grounded on the teacher's http.Client-plus-json.Marshal/Decode
// idiom for talking to a local HTTP service (engine/subprocess.go).
type CaptchaClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCaptchaClient(baseURL, apiKey string) *CaptchaClient {
	return &CaptchaClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Solve uploads a screenshot containing a CAPTCHA challenge and returns
// the solver's text answer.
func (c *CaptchaClient) Solve(ctx context.Context, screenshotPNG []byte) (string, error) {
	reqBody, err := json.Marshal(map[string]string{
		"image_base64": encodeBase64(screenshotPNG),
	})
	if err != nil {
		return "", fmt.Errorf("marshal captcha request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/solve", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("new captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("captcha request: %w", domain.ErrCaptchaFailed)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read captcha response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("captcha solver returned %d: %w", resp.StatusCode, domain.ErrCaptchaFailed)
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode captcha response: %w", domain.ErrCaptchaFailed)
	}
	if out.Answer == "" {
		return "", domain.ErrCaptchaFailed
	}
	return out.Answer, nil
}
