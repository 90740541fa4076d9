// Package automation speaks the W3C-WebDriver-compatible HTTP contract
// (§6.2) to a single device's automation agent. Two http.Clients are
// used against the agent with differing default timeouts, because the
// agent's response time distributes bimodally: a short one for gestures
// and a long one for heavy reads (screenshots).
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// AppState mirrors the four application-lifecycle states the agent
// reports (§6.2).
type AppState int

const (
	AppNotRunning AppState = 1
	AppBackground AppState = 2
	AppSuspended  AppState = 3
	AppForeground AppState = 4
)

// LocatorStrategy is the element-lookup strategy, tried in the order
// §6.2 prescribes.
type LocatorStrategy string

const (
	StrategyAccessibilityID LocatorStrategy = "accessibility id"
	StrategyPredicateString LocatorStrategy = "predicate string"
	StrategyClassChain      LocatorStrategy = "class chain"
	StrategyXPath           LocatorStrategy = "xpath"
)

var LocatorPreferenceOrder = []LocatorStrategy{
	StrategyAccessibilityID, StrategyPredicateString, StrategyClassChain, StrategyXPath,
}

// Client is a per-device HTTP client to the automation agent, wrapped in
// a circuit breaker that opens after repeated health-probe failures
// (spec.md §4.3 step 2, §7 failure mode 1).
type Client struct {
	baseURL       string
	gestureClient *http.Client
	readClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
	sessionID     string
}

// Config controls per-client timeouts. The circuit-breaker thresholds are
// fixed in New and are not configurable.
type Config struct {
	GestureTimeout time.Duration // default 10s
	ReadTimeout    time.Duration // default 60s
}

// New builds a Client for one device's automation endpoint.
func New(baseURL string, cfg Config, deviceID string) *Client {
	gestureTimeout := cfg.GestureTimeout
	if gestureTimeout <= 0 {
		gestureTimeout = 10 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "automation/" + deviceID,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{
		baseURL:       baseURL,
		gestureClient: &http.Client{Timeout: gestureTimeout},
		readClient:    &http.Client{Timeout: readTimeout},
		breaker:       breaker,
	}
}

// StatusError wraps a non-2xx agent response so the session runner can
// map it to an event type per §4.8.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("automation agent returned %d: %s", e.StatusCode, e.Body)
}

// Probe calls GET /status. Failures increment the circuit breaker's
// consecutive-failure count; when the breaker is open, Probe fails fast
// without a network call.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.doGesture(ctx, http.MethodGet, "/status", nil, nil)
	})
	return err
}

// BreakerOpen reports whether the circuit breaker is currently open,
// i.e. the device should be treated as unreachable without retrying.
func (c *Client) BreakerOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// StartSession begins an automation session (POST /session) and caches
// the session id for subsequent calls. Screen geometry is not fetched or
// cached.
func (c *Client) StartSession(ctx context.Context) error {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.doGesture(ctx, http.MethodPost, "/session", nil, &resp); err != nil {
		return err
	}
	c.sessionID = resp.SessionID
	return nil
}

// EndSession tears down the automation session (DELETE /session/{id}).
func (c *Client) EndSession(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	return c.doGesture(ctx, http.MethodDelete, "/session/"+c.sessionID, nil, nil)
}

// Screenshot fetches raw PNG bytes via POST /session/{id}/screenshot,
// used for CAPTCHA-solving (§4.7). Uses the long read timeout.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/session/"+c.sessionID+"/screenshot", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.readClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screenshot request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read screenshot body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// FindElement looks up an element by the given strategy, trying
// LocatorPreferenceOrder when strategy is empty.
func (c *Client) FindElement(ctx context.Context, strategy LocatorStrategy, value string) (string, error) {
	if strategy == "" {
		var lastErr error
		for _, s := range LocatorPreferenceOrder {
			id, err := c.FindElement(ctx, s, value)
			if err == nil {
				return id, nil
			}
			lastErr = err
		}
		return "", lastErr
	}
	payload := map[string]string{"using": string(strategy), "value": value}
	var resp struct {
		Value struct {
			ElementID string `json:"ELEMENT"`
		} `json:"value"`
	}
	if err := c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/element", payload, &resp); err != nil {
		return "", err
	}
	return resp.Value.ElementID, nil
}

// Click performs an element click.
func (c *Client) Click(ctx context.Context, elementID string) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/element/"+elementID+"/click", nil, nil)
}

// SetValue sets an element's value (text entry fields).
func (c *Client) SetValue(ctx context.Context, elementID, value string) error {
	payload := map[string]any{"text": value}
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/element/"+elementID+"/value", payload, nil)
}

// Action is one W3C Actions-based pointer step (tap/double-tap/swipe).
type Action struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
}

// PerformActions submits a W3C Actions sequence for a tap, double-tap,
// or swipe gesture.
func (c *Client) PerformActions(ctx context.Context, actions []Action) error {
	payload := map[string]any{
		"actions": []map[string]any{
			{"type": "pointer", "id": "finger1", "parameters": map[string]string{"pointerType": "touch"}, "actions": actions},
		},
	}
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/actions", payload, nil)
}

// InstallApp installs the app at appPath (a path or URL the agent can
// fetch), completing the reinstall half of §4.4 step 2.
func (c *Client) InstallApp(ctx context.Context, appPath string) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/appium/device/install_app",
		map[string]string{"appPath": appPath}, nil)
}

// UninstallApp removes the named bundle id, completing the uninstall
// half of §4.4 step 2 — the single largest anti-fingerprinting lever,
// since a fresh install produces a new per-vendor installation identity.
func (c *Client) UninstallApp(ctx context.Context, bundleID string) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/appium/device/remove_app",
		map[string]string{"bundleId": bundleID}, nil)
}

// ActivateApp brings the named bundle id to the foreground.
func (c *Client) ActivateApp(ctx context.Context, bundleID string) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/appium/device/activate_app",
		map[string]string{"bundleId": bundleID}, nil)
}

// TerminateApp kills the named bundle id.
func (c *Client) TerminateApp(ctx context.Context, bundleID string) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/appium/device/terminate_app",
		map[string]string{"bundleId": bundleID}, nil)
}

// AppState queries the current lifecycle state of the named bundle id.
func (c *Client) AppState(ctx context.Context, bundleID string) (AppState, error) {
	var resp struct {
		Value int `json:"value"`
	}
	if err := c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/appium/device/app_state",
		map[string]string{"bundleId": bundleID}, &resp); err != nil {
		return 0, err
	}
	return AppState(resp.Value), nil
}

// AlertText returns the text of any currently-displayed system alert.
func (c *Client) AlertText(ctx context.Context) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}
	if err := c.doGesture(ctx, http.MethodGet, "/session/"+c.sessionID+"/alert/text", nil, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (c *Client) AcceptAlert(ctx context.Context) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/alert/accept", nil, nil)
}

func (c *Client) DismissAlert(ctx context.Context) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/alert/dismiss", nil, nil)
}

// HardwareButton is a physical button the agent can press on the core's
// behalf (home, volumeUp, volumeDown).
type HardwareButton string

const (
	ButtonHome      HardwareButton = "home"
	ButtonVolumeUp  HardwareButton = "volumeUp"
	ButtonVolumeDown HardwareButton = "volumeDown"
)

func (c *Client) PressButton(ctx context.Context, button HardwareButton) error {
	return c.doGesture(ctx, http.MethodPost, "/session/"+c.sessionID+"/appium/device/press_button",
		map[string]string{"name": string(button)}, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doGesture issues a short-timeout request; used for all calls except
// the heavy screenshot read.
func (c *Client) doGesture(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.gestureClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
