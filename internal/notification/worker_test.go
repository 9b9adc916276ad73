package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"maintenance-scheduler/internal/events"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func overdueEvent(equipmentID string) events.Event {
	return events.Event{
		Type:         events.OccurrenceOverdue,
		OccurrenceID: "occ-" + equipmentID,
		EquipmentID:  equipmentID,
		Status:       model.StatusOverdue,
		OccurredAt:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

const subscriptionQuery = `SELECT .* FROM "push_subscriptions".*JOIN .*subscription_equipment_mapping.*WHERE .*sem\.equipment_id = \$1`

const equipmentQuery = `SELECT "name" FROM "equipment" WHERE id = \$1 LIMIT \$[0-9]+`

func TestWorkerPool_Publish(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 1, db, &webpush.Options{}, logger.Nop())

	require.NoError(t, wp.Publish(context.Background(), overdueEvent("eq-1")))

	// Queue holds one event and nobody is draining it.
	err := wp.Publish(context.Background(), overdueEvent("eq-2"))
	assert.ErrorIs(t, err, ErrQueueFull)

	select {
	case ev := <-wp.jobs:
		assert.Equal(t, "eq-1", ev.EquipmentID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event to be queued")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, 4, gormDB, &webpush.Options{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				var p Payload
				assert.NoError(t, json.Unmarshal(payload, &p))
				assert.Equal(t, "Maintenance overdue", p.Title)
				assert.Equal(t, "Maintenance of Chiller 101 is overdue.", p.Body)
				assert.Equal(t, "occ-eq-101", p.Event.OccurrenceID)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("eq-101").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		mock.ExpectQuery(equipmentQuery).
			WithArgs("eq-101", 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Chiller 101"))

		require.NoError(t, wp.Publish(ctx, overdueEvent("eq-101")))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/expired",
			P256DH:   "test_p256dh_expired",
			Auth:     "test_auth_expired",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("eq-102").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		mock.ExpectQuery(equipmentQuery).
			WithArgs("eq-102", 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Boiler 102"))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, wp.Publish(ctx, overdueEvent("eq-102")))

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("falls back to equipment ID when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				var p Payload
				assert.NoError(t, json.Unmarshal(payload, &p))
				assert.Equal(t, "Maintenance of eq-103 is overdue.", p.Body)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("eq-103").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/fallback", "k", "a", time.Now()))

		mock.ExpectQuery(equipmentQuery).
			WithArgs("eq-103", 1).
			WillReturnError(fmt.Errorf("equipment not found"))

		require.NoError(t, wp.Publish(ctx, overdueEvent("eq-103")))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBody(t *testing.T) {
	ev := overdueEvent("eq-1")
	ev.Type = events.OccurrenceCompleted
	ev.Status = model.StatusCompleted
	assert.Equal(t, "Maintenance of Pump is now COMPLETED.", body(ev, "Pump"))
	assert.Equal(t, "Maintenance completed", title(ev.Type))
}
