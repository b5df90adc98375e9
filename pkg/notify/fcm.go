package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"
)

// ErrNoTarget is returned when an FCM notifier has neither topic nor token.
var ErrNoTarget = errors.New("notify: FCM topic or device token required")

// FCMConfig configures push delivery through Firebase Cloud Messaging.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string // service account JSON; empty uses ADC
	Topic           string // e.g. "family-circle"
	DeviceToken     string // single device, used when Topic is empty

	// MinLevel filters out chattier notices. Empty sends everything.
	MinLevel Level

	// Endpoint overrides the API base URL (tests).
	Endpoint string
}

// FCMNotifier pushes notices to phones via FCM HTTP v1.
type FCMNotifier struct {
	svc    *fcm.Service
	parent string
	cfg    FCMConfig
	logger *slog.Logger
}

// NewFCMNotifier creates the FCM service client.
func NewFCMNotifier(ctx context.Context, cfg FCMConfig, logger *slog.Logger) (*FCMNotifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("notify: FCM project ID required")
	}
	if cfg.Topic == "" && cfg.DeviceToken == "" {
		return nil, ErrNoTarget
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}

	return &FCMNotifier{
		svc:    svc,
		parent: "projects/" + cfg.ProjectID,
		cfg:    cfg,
		logger: logger.With("component", "notify.fcm"),
	}, nil
}

// Notify sends n as a push notification.
func (f *FCMNotifier) Notify(ctx context.Context, n Notice) error {
	if !f.wants(n.Level) {
		return nil
	}

	msg := &fcm.Message{
		Notification: &fcm.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: map[string]string{"level": string(n.Level)},
	}
	for k, v := range n.Data {
		msg.Data[k] = v
	}
	if f.cfg.Topic != "" {
		msg.Topic = f.cfg.Topic
	} else {
		msg.Token = f.cfg.DeviceToken
	}
	if n.Level == LevelUrgent {
		msg.Android = &fcm.AndroidConfig{Priority: "HIGH"}
	}

	sent, err := f.svc.Projects.Messages.
		Send(f.parent, &fcm.SendMessageRequest{Message: msg}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	f.logger.Debug("push sent", "title", n.Title, "name", sent.Name)
	return nil
}

var levelRank = map[Level]int{
	LevelInfo:    0,
	LevelSuccess: 0,
	LevelWarning: 1,
	LevelError:   2,
	LevelUrgent:  3,
}

func (f *FCMNotifier) wants(l Level) bool {
	if f.cfg.MinLevel == "" {
		return true
	}
	return levelRank[l] >= levelRank[f.cfg.MinLevel]
}
