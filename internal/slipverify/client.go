// Package slipverify reads bank transfer slips through the external recognition API.
package slipverify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campverse/backend/config"
)

// ErrUnreadable means the API answered but could not extract a transfer from the image.
var ErrUnreadable = errors.New("slip could not be read")

// Result is the transfer extracted from a slip.
type Result struct {
	TransRef        string
	Date            time.Time
	Amount          float64
	ReceiverName    string
	ReceiverAccount string
	ReceiverProxy   string
	SenderName      string
}

// Client calls the slip recognition API.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
	logger *zap.Logger
}

// NewClient returns nil when no API URL is configured.
func NewClient(cfg config.SlipVerifyConfig, logger *zap.Logger) *Client {
	if cfg.URL == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type name string

// UnmarshalJSON accepts either a plain string or a {th, en} object.
func (n *name) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = name(s)
		return nil
	}
	var v struct {
		TH string `json:"th"`
		EN string `json:"en"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.EN != "" {
		*n = name(v.EN)
	} else {
		*n = name(v.TH)
	}
	return nil
}

type party struct {
	Account struct {
		Name name `json:"name"`
		Bank struct {
			Account string `json:"account"`
		} `json:"bank"`
	} `json:"account"`
	Proxy struct {
		Account string `json:"account"`
	} `json:"proxy"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		TransRef string      `json:"transRef"`
		Date     time.Time   `json:"date"`
		Amount   json.Number `json:"amount"`
		Receiver party       `json:"receiver"`
		Sender   party       `json:"sender"`
	} `json:"data"`
}

// Verify submits the slip image URL and returns the extracted transfer.
func (c *Client) Verify(ctx context.Context, slipURL string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"url": slipURL})
	if err != nil {
		return nil, fmt.Errorf("marshal slip request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build slip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slip api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read slip response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("slip api status %d", resp.StatusCode)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			c.logger.Warn("slip api rejected request", zap.Int("status", resp.StatusCode))
			return nil, ErrUnreadable
		}
		return nil, fmt.Errorf("decode slip response: %w", err)
	}
	if !out.Success || resp.StatusCode >= http.StatusBadRequest {
		c.logger.Info("slip unreadable", zap.Int("status", resp.StatusCode), zap.String("message", out.Message))
		return nil, ErrUnreadable
	}
	amount, err := out.Data.Amount.Float64()
	if err != nil {
		return nil, ErrUnreadable
	}
	return &Result{
		TransRef:        strings.TrimSpace(out.Data.TransRef),
		Date:            out.Data.Date,
		Amount:          amount,
		ReceiverName:    string(out.Data.Receiver.Account.Name),
		ReceiverAccount: out.Data.Receiver.Account.Bank.Account,
		ReceiverProxy:   out.Data.Receiver.Proxy.Account,
		SenderName:      string(out.Data.Sender.Account.Name),
	}, nil
}
