// Package push delivers notification envelopes to mobile devices through
// Firebase Cloud Messaging or AWS SNS, falling back to a mock transport when
// neither can be initialized.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

// Provider names
const (
	ProviderFCM  = "fcm"
	ProviderSNS  = "sns"
	ProviderMock = "mock"
)

// Config selects the push provider and its credentials
type Config struct {
	Provider string

	// FCM
	CredentialsFile string
	CredentialsJSON string
	ProjectID       string

	// SNS
	SNSRegion         string
	SNSTopicARNPrefix string
}

// Backend submits a single normalized message and returns the provider message id
type Backend interface {
	Send(ctx context.Context, msg Message) (string, error)
	Name() string
}

// batchBackend is implemented by backends with a native multi-send call
type batchBackend interface {
	SendEach(ctx context.Context, msgs []Message) ([]SendResult, error)
}

// BackendFactory builds a live backend; an error puts the client in mock mode
type BackendFactory func(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error)

// SendResult is the outcome of a single push
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Mock      bool   `json:"mock,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// BatchResult aggregates the outcomes of a multi-token send
type BatchResult struct {
	Success      bool         `json:"success"`
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	Responses    []SendResult `json:"responses"`
}

// Client is the long-lived push transport. Construct it once and inject it.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	factories map[string]BackendFactory

	once    sync.Once
	backend Backend
	mock    bool
	initErr error
}

// NewClient creates an uninitialized client with the fcm and sns backends registered
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		factories: map[string]BackendFactory{
			ProviderFCM: newFCMBackend,
			ProviderSNS: newSNSBackend,
		},
	}
}

// NewClientWithBackend creates a client bound to an already built backend.
// A nil backend yields a client in mock mode.
func NewClientWithBackend(backend Backend, logger *zap.Logger) *Client {
	c := &Client{logger: logger}
	c.once.Do(func() {
		c.backend = backend
		c.mock = backend == nil
	})
	return c
}

// Init selects and builds the configured backend. It runs at most once; a
// failure leaves the client in mock mode for its whole lifetime and is
// returned so the caller can log why.
func (c *Client) Init(ctx context.Context) error {
	c.once.Do(func() {
		c.initErr = c.initBackend(ctx)
		if c.initErr != nil {
			c.mock = true
			c.logger.Warn("push transport unavailable, running in mock mode",
				zap.String("provider", c.cfg.Provider),
				zap.Error(c.initErr),
			)
			return
		}
		if c.mock {
			c.logger.Info("push transport running in mock mode")
			return
		}
		c.logger.Info("push transport initialized", zap.String("provider", c.backend.Name()))
	})
	return c.initErr
}

func (c *Client) initBackend(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(c.cfg.Provider))
	if provider == "" || provider == ProviderMock {
		c.mock = true
		return nil
	}

	factory, ok := c.factories[provider]
	if !ok {
		return fmt.Errorf("unknown push provider %q", c.cfg.Provider)
	}

	backend, err := factory(ctx, c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("init %s backend: %w", provider, err)
	}
	c.backend = backend
	return nil
}

// IsMockMode reports whether sends are simulated
func (c *Client) IsMockMode() bool {
	c.Init(context.Background())
	return c.mock
}

// Provider returns the active backend name, or "mock"
func (c *Client) Provider() string {
	if c.IsMockMode() {
		return ProviderMock
	}
	return c.backend.Name()
}

// Send delivers one envelope. A missing token is a ValidationError; backend
// failures come back as *TransportError alongside a failed SendResult.
func (c *Client) Send(ctx context.Context, env Envelope) (SendResult, error) {
	if err := validateEnvelope(env); err != nil {
		return SendResult{Error: err.Error(), Code: CodeInvalidRecipient}, err
	}

	if c.IsMockMode() {
		return mockResult(), nil
	}

	msg := toMessage(env)
	id, err := c.backend.Send(ctx, msg)
	if err != nil {
		terr := asTransportError(err)
		c.logger.Warn("push send failed",
			zap.String("provider", c.backend.Name()),
			zap.Bool("topic", msg.Topic != ""),
			zap.String("code", terr.Code),
			zap.Error(err),
		)
		return SendResult{Error: terr.Message, Code: terr.Code}, terr
	}

	return SendResult{Success: true, MessageID: id}, nil
}

// SendBatch delivers up to MaxBatchSize envelopes. Oversized batches are
// rejected before anything is sent; per-envelope failures are reported in
// Responses rather than as an error.
func (c *Client) SendBatch(ctx context.Context, envs []Envelope) (*BatchResult, error) {
	if len(envs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d envelopes, limit is %d", apperr.ErrBatchTooLarge, len(envs), MaxBatchSize)
	}

	res := &BatchResult{Responses: make([]SendResult, len(envs))}
	if len(envs) == 0 {
		res.Success = true
		return res, nil
	}

	// valid envelopes keep their original index so responses line up
	var (
		msgs    []Message
		indexes []int
	)
	for i, env := range envs {
		if err := validateEnvelope(env); err != nil {
			res.Responses[i] = SendResult{Error: err.Error(), Code: CodeInvalidRecipient}
			continue
		}
		if c.IsMockMode() {
			res.Responses[i] = mockResult()
			continue
		}
		msgs = append(msgs, toMessage(env))
		indexes = append(indexes, i)
	}

	if len(msgs) > 0 {
		results, err := c.sendEach(ctx, msgs)
		if err != nil {
			return nil, err
		}
		for j, r := range results {
			res.Responses[indexes[j]] = r
		}
	}

	for _, r := range res.Responses {
		if r.Success {
			res.SuccessCount++
		} else {
			res.FailureCount++
		}
	}
	res.Success = res.FailureCount == 0

	return res, nil
}

func (c *Client) sendEach(ctx context.Context, msgs []Message) ([]SendResult, error) {
	if bb, ok := c.backend.(batchBackend); ok {
		results, err := bb.SendEach(ctx, msgs)
		if err != nil {
			return nil, asTransportError(err)
		}
		return results, nil
	}

	results := make([]SendResult, len(msgs))
	for i, msg := range msgs {
		id, err := c.backend.Send(ctx, msg)
		if err != nil {
			terr := asTransportError(err)
			results[i] = SendResult{Error: terr.Message, Code: terr.Code}
			continue
		}
		results[i] = SendResult{Success: true, MessageID: id}
	}
	return results, nil
}

func validateEnvelope(env Envelope) error {
	token := strings.TrimSpace(env.Token)
	if token == "" || token == TopicPrefix {
		return apperr.Missing("recipientToken")
	}
	return nil
}

func mockResult() SendResult {
	return SendResult{
		Success:   true,
		MessageID: "mock-" + uuid.NewString(),
		Mock:      true,
	}
}

func asTransportError(err error) *TransportError {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr
	}
	return newTransportError(CodeUnknown, err)
}
