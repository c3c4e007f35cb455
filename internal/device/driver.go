package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Driver pushes a desired on/off state to one physical output channel.
type Driver interface {
	Set(ctx context.Context, controlCode string, on bool) error
}

// HTTPDriver talks to the vendor switch bridge. Each call rides the caller's
// context; the client timeout is only a backstop.
type HTTPDriver struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// NewHTTPDriver creates a driver client. Skip mode acknowledges every call
// without network I/O, for dev environments with no hardware attached.
func NewHTTPDriver(baseURL string, skip bool, timeout time.Duration) *HTTPDriver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDriver{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Set issues one switch command.
func (d *HTTPDriver) Set(ctx context.Context, controlCode string, on bool) error {
	if d.Skip {
		return nil
	}
	if controlCode == "" {
		return fmt.Errorf("control code required")
	}

	state := "off"
	if on {
		state = "on"
	}
	body, _ := json.Marshal(map[string]string{"code": controlCode, "state": state})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/switch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("switch bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("switch bridge error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}
