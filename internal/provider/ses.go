package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// sesAPI is the subset of the SES v2 client used by the provider.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, in *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SES implements the Provider interface for the AWS SES v2 API.
type SES struct {
	region string
	api    sesAPI
}

// NewSES creates an SES provider around an SES v2 client.
func NewSES(cfg ProviderConfig, api sesAPI) *SES {
	return &SES{region: cfg.Region, api: api}
}

// newSESClient loads AWS configuration for cfg.Region. Static credentials
// are used when an access key is configured, otherwise the default chain.
func newSESClient(ctx context.Context, cfg ProviderConfig) (*sesv2.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.APIKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, cfg.Secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (s *SES) GetName() string { return "ses" }

// Send delivers a message via SendEmail.
func (s *SES) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	out, err := s.api.SendEmail(ctx, s.buildInput(msg))
	if err != nil {
		return nil, classifySESError(err)
	}

	return &DeliveryResult{
		ProviderMessageID: aws.ToString(out.MessageId),
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"region": s.region},
	}, nil
}

// HealthCheck verifies SES connectivity and that sending is enabled for
// the account.
func (s *SES) HealthCheck(ctx context.Context) error {
	out, err := s.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("ses: get account: %w", err)
	}
	if !out.SendingEnabled {
		return errors.New("ses: sending is disabled for this account")
	}
	return nil
}

func (s *SES) buildInput(msg *Message) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.FromHeader()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}

	for _, k := range sortedKeys(msg.Tags) {
		in.EmailTags = append(in.EmailTags, types.MessageTag{
			Name:  aws.String(k),
			Value: aws.String(msg.Tags[k]),
		})
	}
	return in
}

// classifySESError maps SES API error codes onto ProviderError.
func classifySESError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("ses: send: %w", err)
	}

	pe := &ProviderError{Provider: "ses", Message: apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()}
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "LimitExceededException", "InternalFailure", "ServiceUnavailable":
		pe.Permanent = false
	default:
		pe.Permanent = apiErr.ErrorFault() == smithy.FaultClient
	}
	return pe
}
