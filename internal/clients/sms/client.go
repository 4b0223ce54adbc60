package sms

import (
	"context"
	"fmt"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioClient struct {
	client *twilio.RestClient
	logger *observability.Logger
}

func NewTwilioClient(accountSID, authToken string, logger *observability.Logger) *TwilioClient {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioClient{
		client: client,
		logger: logger,
	}
}

func (c *TwilioClient) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "sms_to", Value: to},
	)

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(body)

	res, err := c.client.Api.CreateMessage(params)
	if err != nil {
		c.logger.Error(ctx, "failed to send sms", err)
		return "", fmt.Errorf("failed to send sms: %w", err)
	}

	if res.Sid == nil {
		return "", fmt.Errorf("sms provider returned no message sid")
	}

	c.logger.Info(ctx, "sms sent successfully")
	return *res.Sid, nil
}
