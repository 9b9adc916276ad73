package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"maintenance-scheduler/internal/events"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/model"
)

// ErrQueueFull is returned by Publish when the pool cannot take more events.
var ErrQueueFull = errors.New("notification queue is full")

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

// Payload is the JSON document delivered to browsers.
type Payload struct {
	Title string       `json:"title"`
	Body  string       `json:"body"`
	Event events.Event `json:"event"`
}

// WorkerPool fans occurrence events out to the push subscriptions of the
// affected equipment. It implements events.Publisher.
type WorkerPool struct {
	size    int
	jobs    chan events.Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     logger.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, log logger.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan events.Event, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("Notification worker started", "worker", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.sendNotificationsForEvent(ctx, ev)
		case <-ctx.Done():
			wp.log.Debug("Notification worker shutting down", "worker", id)
			return
		}
	}
}

// Publish queues ev for delivery without blocking the caller.
func (wp *WorkerPool) Publish(ctx context.Context, ev events.Event) error {
	select {
	case wp.jobs <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: dropping %s for occurrence %s", ErrQueueFull, ev.Type, ev.OccurrenceID)
	}
}

func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, ev events.Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_equipment_mapping sem ON sem.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sem.equipment_id = ?", ev.EquipmentID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("Error fetching subscriptions", "equipment_id", ev.EquipmentID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := ev.EquipmentID
	var equipment model.Equipment
	if err := wp.db.WithContext(ctx).
		Select("name").
		Where("id = ?", ev.EquipmentID).
		Take(&equipment).Error; err != nil {
		wp.log.Warn("Error fetching equipment", "equipment_id", ev.EquipmentID, "error", err)
	} else if equipment.Name != "" {
		label = equipment.Name
	}

	payload, err := json.Marshal(Payload{
		Title: title(ev.Type),
		Body:  body(ev, label),
		Event: ev,
	})
	if err != nil {
		wp.log.Error("Error encoding push payload", "occurrence_id", ev.OccurrenceID, "error", err)
		return
	}

	wp.log.Info("Sending push notifications", "count", len(subscriptions), "type", ev.Type, "equipment_id", ev.EquipmentID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
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
		wp.log.Warn("Error sending notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("Subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("Failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

func title(t events.Type) string {
	switch t {
	case events.OccurrenceCreated:
		return "Maintenance scheduled"
	case events.OccurrenceCompleted:
		return "Maintenance completed"
	case events.OccurrenceCancelled:
		return "Maintenance cancelled"
	case events.OccurrenceOverdue:
		return "Maintenance overdue"
	}
	return "Maintenance update"
}

func body(ev events.Event, label string) string {
	switch ev.Type {
	case events.OccurrenceOverdue:
		return fmt.Sprintf("Maintenance of %s is overdue.", label)
	case events.OccurrenceCreated:
		return fmt.Sprintf("New maintenance scheduled for %s.", label)
	}
	return fmt.Sprintf("Maintenance of %s is now %s.", label, ev.Status)
}
