package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// TopicManager is the part of the Firebase messaging client used here.
type TopicManager interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// Client subscribes freshly issued registration tokens to the app topic so
// broadcast pushes reach the device.
type Client struct {
	topics    TopicManager
	topic     string
	projectID string
	logger    *zap.Logger
}

func NewClient(ctx context.Context, serviceAccountJSON []byte, topic string, logger *zap.Logger) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, serviceAccountJSON, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("error reading service account: %w", err)
	}

	var rawJSON map[string]interface{}
	if err := json.Unmarshal(serviceAccountJSON, &rawJSON); err != nil {
		return nil, err
	}
	projectID, _ := rawJSON["project_id"].(string)
	if projectID == "" {
		return nil, errors.New("service account has no project_id")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return NewClientWithManager(messagingClient, projectID, topic, logger), nil
}

func NewClientWithManager(topics TopicManager, projectID, topic string, logger *zap.Logger) *Client {
	return &Client{
		topics:    topics,
		topic:     strings.TrimPrefix(topic, "/topics/"),
		projectID: projectID,
		logger:    logger.Named("fcm"),
	}
}

func (c *Client) Name() string {
	return "fcm_topic"
}

// Register subscribes token to the configured topic.
func (c *Client) Register(ctx context.Context, token string) error {
	resp, err := c.topics.SubscribeToTopic(ctx, []string{token}, c.topic)
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %w", c.topic, err)
	}

	if resp != nil && resp.FailureCount > 0 {
		reason := "unknown"
		if len(resp.Errors) > 0 && resp.Errors[0] != nil {
			reason = resp.Errors[0].Reason
		}
		return fmt.Errorf("failed to subscribe token to topic %s: %s", c.topic, reason)
	}

	c.logger.Info("Token subscribed to topic", zap.String("topic", c.topic), zap.String("project_id", c.projectID))
	return nil
}
