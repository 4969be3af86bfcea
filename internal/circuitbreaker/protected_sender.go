package circuitbreaker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/push"
)

// Sender is satisfied by *push.Client
type Sender interface {
	Send(ctx context.Context, env push.Envelope) (push.SendResult, error)
}

// ProtectedSender wraps a Sender with a CircuitBreaker. While the circuit is
// open, sends fail immediately with code messaging/circuit-open.
type ProtectedSender struct {
	sender  Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedSender(sender Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send delivers env through the breaker. Only provider-side failures count
// against the circuit; a rejected token or bad payload means the provider
// answered, so it counts as a success for breaker purposes.
func (p *ProtectedSender) Send(ctx context.Context, env push.Envelope) (push.SendResult, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected push send",
			zap.String("breaker", p.breaker.Name()),
			zap.String("state", p.breaker.GetState().String()),
		)
		terr := &push.TransportError{
			Code:    push.CodeCircuitOpen,
			Message: p.breaker.Name() + " transport unavailable",
			Err:     ErrCircuitOpen,
		}
		return push.SendResult{Error: terr.Message, Code: terr.Code}, terr
	}

	res, err := p.sender.Send(ctx, env)
	if err != nil && providerFailure(err) {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.Name()),
			zap.Error(err),
		)
		return res, err
	}

	p.breaker.RecordSuccess()
	return res, err
}

// Breaker returns the underlying circuit breaker for status reporting.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}

func providerFailure(err error) bool {
	if errors.Is(err, apperr.ErrValidation) {
		return false
	}

	var terr *push.TransportError
	if !errors.As(err, &terr) {
		return true
	}
	switch terr.Code {
	case push.CodeInvalidRecipient, push.CodeInvalidArgument, push.CodeUnregistered:
		return false
	}
	return true
}
