package conf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/programme-lv/handin/notify"
)

type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SendgridAPIKey returns the literal key when configured, otherwise reads
// it from Secrets Manager. The secret may hold the bare key or a JSON
// object with an "apiKey" field.
func (c Config) SendgridAPIKey(ctx context.Context, sm SecretGetter) (string, error) {
	if c.Notify.SendgridAPIKey != "" {
		return c.Notify.SendgridAPIKey, nil
	}
	if c.Notify.SendgridSecretName == "" {
		return "", fmt.Errorf("no sendgrid api key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.Notify.SendgridSecretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get sendgrid secret: %w", err)
	}
	value := strings.TrimSpace(aws.ToString(out.SecretString))
	if value == "" {
		return "", fmt.Errorf("sendgrid secret %s is empty", c.Notify.SendgridSecretName)
	}

	if strings.HasPrefix(value, "{") {
		var secret struct {
			APIKey string `json:"apiKey"`
		}
		if err := json.Unmarshal([]byte(value), &secret); err != nil {
			return "", fmt.Errorf("failed to parse sendgrid secret: %w", err)
		}
		if secret.APIKey == "" {
			return "", fmt.Errorf("sendgrid secret %s has no apiKey", c.Notify.SendgridSecretName)
		}
		return secret.APIKey, nil
	}
	return value, nil
}

// NewMailer builds the notification sender selected by the notify driver.
func (c Config) NewMailer(ctx context.Context, awsCfg aws.Config, logger *slog.Logger) (notify.Sender, error) {
	if c.Notify.Driver != NotifyDriverSendgrid {
		return notify.NewConsoleSender(logger), nil
	}
	key, err := c.SendgridAPIKey(ctx, secretsmanager.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return notify.NewSendgridSender(key, c.Notify.FromName, c.Notify.FromAddress, c.Notify.AppName), nil
}
