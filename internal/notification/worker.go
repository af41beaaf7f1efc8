package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"session-scheduler-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Observer is told the result of every delivery attempt.
type Observer interface {
	ObserveNotification(result string)
}

type nopObserver struct{}

func (nopObserver) ObserveNotification(string) {}

// Delivery results reported to the Observer.
const (
	ResultSent    = "sent"
	ResultExpired = "expired"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// WorkerPool tells subscribers of a machine that its timetable changed.
type WorkerPool struct {
	size     int
	jobs     chan string
	db       *gorm.DB
	webpush  *webpush.Options
	sender   NotificationSender
	observer Observer
	logger   zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		size:     size,
		jobs:     make(chan string, size*16),
		db:       db,
		webpush:  webpushOptions,
		sender:   &WebPushSender{}, // Use the real sender by default
		observer: nopObserver{},
		logger:   logger.With().Str("component", "notification").Logger(),
	}
}

// SetObserver installs an Observer for delivery results.
func (wp *WorkerPool) SetObserver(o Observer) {
	if o != nil {
		wp.observer = o
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug().Int("worker", id).Msg("worker started")
	for {
		select {
		case machineID := <-wp.jobs:
			wp.logger.Debug().Int("worker", id).Str("machine", machineID).Msg("processing machine")
			wp.sendNotificationsForMachine(ctx, machineID)
		case <-ctx.Done():
			wp.logger.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
	}
}

// Dispatch queues a machine without blocking. When the queue is full the
// job is dropped and false is returned.
func (wp *WorkerPool) Dispatch(machineID string) bool {
	select {
	case wp.jobs <- machineID:
		return true
	default:
		wp.logger.Warn().Str("machine", machineID).Msg("notification queue full, dropping job")
		wp.observer.ObserveNotification(ResultDropped)
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, machineID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", machineID).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error().Err(err).Str("machine", machineID).Msg("failed to fetch subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.logger.Info().Int("count", len(subscriptions)).Str("machine", machineID).Msg("sending notifications")

	var machine model.Machine
	machineLabel := machineID
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&machine, "id = ?", machineID).Error; err != nil {
		wp.logger.Warn().Err(err).Str("machine", machineID).Msg("failed to fetch machine name")
	} else if machine.Name != "" {
		machineLabel = machine.Name
	}

	message := fmt.Sprintf("Machine %s schedule updated", machineLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		wp.observer.ObserveNotification(ResultFailed)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		wp.observer.ObserveNotification(ResultExpired)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
		return
	}
	wp.observer.ObserveNotification(ResultSent)
}
