package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// snsPublisher is the subset of *sns.Client the backend uses
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsBackend sends mobile push through SNS platform endpoints. Device tokens
// are endpoint ARNs; topics resolve to TopicARNPrefix + name.
type snsBackend struct {
	client         snsPublisher
	topicARNPrefix string
	logger         *zap.Logger
}

func newSNSBackend(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
	if cfg.SNSRegion == "" {
		return nil, errors.New("sns region not configured")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.SNSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &snsBackend{
		client:         sns.NewFromConfig(awsCfg),
		topicARNPrefix: cfg.SNSTopicARNPrefix,
		logger:         logger,
	}, nil
}

func (b *snsBackend) Name() string { return ProviderSNS }

func (b *snsBackend) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := gcmPayload(msg)
	if err != nil {
		return "", newTransportError(CodeInvalidArgument, err)
	}

	input := &sns.PublishInput{
		Message:          aws.String(payload),
		MessageStructure: aws.String("json"),
	}
	if msg.Topic != "" {
		if b.topicARNPrefix == "" {
			return "", newTransportError(CodeInvalidRecipient, errors.New("topic delivery requires SNS_TOPIC_ARN_PREFIX"))
		}
		input.TopicArn = aws.String(b.topicARNPrefix + msg.Topic)
	} else {
		input.TargetArn = aws.String(msg.Token)
	}

	result, err := b.client.Publish(ctx, input)
	if err != nil {
		return "", mapSNSError(err)
	}

	return aws.ToString(result.MessageId), nil
}

// gcmPayload renders the per-platform JSON document SNS expects when
// MessageStructure is "json".
func gcmPayload(msg Message) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": msg.Title,
			"body":  msg.Body,
		},
		"data": msg.Data,
	})
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}

	doc, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", fmt.Errorf("marshal sns message: %w", err)
	}
	return string(doc), nil
}

func mapSNSError(err error) *TransportError {
	var (
		disabled   *types.EndpointDisabledException
		notFound   *types.NotFoundException
		invalid    *types.InvalidParameterException
		invalidVal *types.InvalidParameterValueException
		authz      *types.AuthorizationErrorException
		throttled  *types.ThrottledException
		internal   *types.InternalErrorException
	)

	code := CodeUnknown
	switch {
	case errors.As(err, &disabled):
		code = CodeUnregistered
	case errors.As(err, &notFound):
		code = CodeInvalidRecipient
	case errors.As(err, &invalid), errors.As(err, &invalidVal):
		code = CodeInvalidArgument
	case errors.As(err, &authz):
		code = CodeThirdPartyAuth
	case errors.As(err, &throttled):
		code = CodeQuotaExceeded
	case errors.As(err, &internal):
		code = CodeInternal
	}
	return newTransportError(code, err)
}
