package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// fcmBackend sends through Firebase Cloud Messaging
type fcmBackend struct {
	client *messaging.Client
	logger *zap.Logger
}

func newFCMBackend(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, errors.New("firebase credentials not configured")
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	return &fcmBackend{
		client: client,
		logger: logger,
	}, nil
}

func (b *fcmBackend) Name() string { return ProviderFCM }

func (b *fcmBackend) Send(ctx context.Context, msg Message) (string, error) {
	id, err := b.client.Send(ctx, toFCMMessage(msg))
	if err != nil {
		return "", mapFCMError(err)
	}
	return id, nil
}

func (b *fcmBackend) SendEach(ctx context.Context, msgs []Message) ([]SendResult, error) {
	fcmMsgs := make([]*messaging.Message, len(msgs))
	for i, msg := range msgs {
		fcmMsgs[i] = toFCMMessage(msg)
	}

	resp, err := b.client.SendEach(ctx, fcmMsgs)
	if err != nil {
		return nil, mapFCMError(err)
	}

	results := make([]SendResult, len(resp.Responses))
	for i, r := range resp.Responses {
		if r.Success {
			results[i] = SendResult{Success: true, MessageID: r.MessageID}
			continue
		}
		terr := mapFCMError(r.Error)
		results[i] = SendResult{Error: terr.Message, Code: terr.Code}
	}

	b.logger.Debug("fcm batch sent",
		zap.Int("success_count", resp.SuccessCount),
		zap.Int("failure_count", resp.FailureCount),
	)

	return results, nil
}

func toFCMMessage(msg Message) *messaging.Message {
	return &messaging.Message{
		Token: msg.Token,
		Topic: msg.Topic,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

func mapFCMError(err error) *TransportError {
	if err == nil {
		return newTransportError(CodeUnknown, errors.New("unknown fcm failure"))
	}

	code := CodeUnknown
	switch {
	case messaging.IsUnregistered(err):
		code = CodeUnregistered
	case messaging.IsInvalidArgument(err):
		code = CodeInvalidArgument
	case messaging.IsSenderIDMismatch(err):
		code = CodeInvalidRecipient
	case messaging.IsThirdPartyAuthError(err):
		code = CodeThirdPartyAuth
	case messaging.IsQuotaExceeded(err):
		code = CodeQuotaExceeded
	case messaging.IsUnavailable(err):
		code = CodeUnavailable
	case messaging.IsInternal(err):
		code = CodeInternal
	}
	return newTransportError(code, err)
}
