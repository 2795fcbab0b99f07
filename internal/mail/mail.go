package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/otpchat/internal/utils"
)

const defaultHTTPTimeout = 15 * time.Second

// Mailer delivers one-time passcodes.
type Mailer interface {
	SendOTP(ctx context.Context, to, subject, code string) error
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to a Resend-compatible transactional email API.
type Client struct {
	baseURL string
	apiKey  string
	from    string
	client  httpDoer
}

func NewClient(cfg utils.MailConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("mail: api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("mail: sender address is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

func (c *Client) SendOTP(ctx context.Context, to, subject, code string) error {
	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    fmt.Sprintf("<p>Your login code is <strong>%s</strong>. It expires in 5 minutes.</p>", html.EscapeString(code)),
		Text:    fmt.Sprintf("Your login code is %s. It expires in 5 minutes.", code),
	})
	if err != nil {
		return fmt.Errorf("mail: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mail: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("mail: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return buildAPIError(resp.StatusCode, body)
	}

	return nil
}

type apiError struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Error   *struct {
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

func buildAPIError(statusCode int, body []byte) error {
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil {
		message := strings.TrimSpace(envelope.Message)
		if message == "" && envelope.Error != nil {
			message = strings.TrimSpace(envelope.Error.Message)
		}
		if message != "" && envelope.Name != "" {
			return fmt.Errorf("mail api error (%d, %s): %s", statusCode, envelope.Name, message)
		}
		if message != "" {
			return fmt.Errorf("mail api error (%d): %s", statusCode, message)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("mail api error (%d): %s", statusCode, snippet)
}

// LogMailer writes the code to the log instead of sending it. Development only.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOTP(ctx context.Context, to, subject, code string) error {
	_ = ctx
	m.logger.Warn("mail: delivery disabled, logging passcode",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("code", code),
	)
	return nil
}

// New picks the mailer for cfg.Driver.
func New(cfg utils.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Driver {
	case utils.MailDriverLog:
		return NewLogMailer(logger), nil
	case utils.MailDriverHTTP, "":
		return NewClient(cfg)
	default:
		return nil, fmt.Errorf("mail: unsupported driver %q", cfg.Driver)
	}
}
