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

// SMSClient leases a disposable phone number and polls it for a
// verification code, using the same thin JSON-over-HTTP idiom as
// CaptchaClient.
type SMSClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSMSClient(baseURL, apiKey string) *SMSClient {
	return &SMSClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// LeaseNumber requests a fresh disposable number, returning a provider
// order id used to poll for the incoming code.
func (c *SMSClient) LeaseNumber(ctx context.Context, countryCode string) (orderID, phoneNumber string, err error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/numbers/lease", map[string]string{"country": countryCode})
	if err != nil {
		return "", "", err
	}
	var out struct {
		OrderID string `json:"order_id"`
		Number  string `json:"number"`
	}
	if err := c.do(req, &out); err != nil {
		return "", "", err
	}
	return out.OrderID, out.Number, nil
}

// PollCode checks whether a code has arrived for orderID; ok is false
// (with no error) when nothing has arrived yet.
func (c *SMSClient) PollCode(ctx context.Context, orderID string) (code string, ok bool, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/numbers/"+orderID+"/code", nil)
	if err != nil {
		return "", false, err
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := c.do(req, &out); err != nil {
		return "", false, err
	}
	return out.Code, out.Code != "", nil
}

func (c *SMSClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal sms request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("new sms request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *SMSClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sms response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, string(data))
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// AwaitCode polls PollCode every interval until a code arrives or budget
// elapses.
func (c *SMSClient) AwaitCode(ctx context.Context, orderID string, budget, interval time.Duration) (string, error) {
	deadline := time.Now().Add(budget)
	for {
		code, ok, err := c.PollCode(ctx, orderID)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
		if time.Now().After(deadline) {
			return "", domain.ErrSMSVerificationTimeout
		}
		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}
}
