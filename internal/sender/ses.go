package sender

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/regabilling/retarget/internal/config"
)

// SESSender delivers email through AWS SES using the SDK v2. Credentials come
// from the default AWS chain (env, shared config, instance role).
type SESSender struct {
	client    *sesv2.Client
	fromName  string
	fromEmail string
}

// NewSESSender builds an SES sender for the configured region.
func NewSESSender(ctx context.Context, cfg config.EmailConfig) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SESRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESSender{
		client:    sesv2.NewFromConfig(awsCfg),
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}, nil
}

// SendEmail delivers a single message and returns the SES message id.
func (s *SESSender) SendEmail(ctx context.Context, to, subject, htmlBody, recipientName string) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send to %s: %w", to, err)
	}
	if result.MessageId == nil {
		return "", nil
	}
	return *result.MessageId, nil
}
