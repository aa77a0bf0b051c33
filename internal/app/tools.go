package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/location"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/notification"
	"github.com/tphakala/safewatch/internal/recipients"
	"github.com/tphakala/safewatch/internal/scoring"
)

// OpenStore opens the configured datastore for one-shot commands.
func OpenStore(settings *conf.Settings) (datastore.Interface, error) {
	return datastore.Open(datastoreConfig(settings.Datastore))
}

// SendTestAlert renders and sends a manual alert for userID through the
// configured transport without storing an emergency record. The user's
// latest live location is included when one exists.
func SendTestAlert(ctx context.Context, settings *conf.Settings, store datastore.Interface, mailer notification.Mailer, userID, userName string) (notification.Result, error) {
	repos := datastore.NewRepositories(store)
	resolver, err := recipients.NewResolver(repos.Contacts, recipients.Operator{
		Name:  settings.Alerting.OperatorName,
		Email: settings.Alerting.OperatorEmail,
	})
	if err != nil {
		return notification.Result{}, err
	}
	if mailer == nil {
		if mailer, err = NewMailer(settings); err != nil {
			return notification.Result{}, err
		}
	}
	dispatcher, err := notification.NewDispatcher(mailer, notification.Config{
		Workers:     settings.Alerting.Workers,
		SendTimeout: settings.Alerting.SendTimeout,
		RateLimit:   settings.Alerting.RateLimit,
		Burst:       settings.Alerting.Burst,
	}, nil)
	if err != nil {
		return notification.Result{}, err
	}

	rcpts, err := resolver.Resolve(ctx, userID)
	if err != nil {
		GetLogger().Warn("contact lookup failed, sending to the operator only", logger.Error(err))
	}

	rec := &model.EmergencyRecord{
		ID:         "test-" + uuid.NewString(),
		UserID:     userID,
		UserName:   userName,
		Confidence: scoring.ManualBreakdown().TotalScore,
		Breakdown:  scoring.ManualBreakdown(),
		Status:     model.RecordActive,
		Manual:     true,
		CreatedAt:  time.Now().UTC(),
	}
	loc := location.NewEnricher(repos.Locations).LatestActive(ctx, userID)
	return dispatcher.Dispatch(ctx, rcpts, rec, loc), nil
}
