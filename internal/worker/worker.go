package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/leverpad/internal/helper"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/smtp"
	"github.com/cradoe/leverpad/internal/stream"
)

type Worker struct {
	KafkaStream       *stream.KafkaStream
	DB                repository.Database
	Ctx               context.Context
	Helper            *helper.HelperRepository
	Mailer            smtp.MailerInterface
	Logger            *slog.Logger
	NotificationEmail string
	// RetryWait is the pause between attempts of a failed handler
	RetryWait time.Duration
}

const (
	// reconcileGroupID is used by the worker that writes deposit rows whose insert failed after the credit committed
	reconcileGroupID = "deposit-reconcile-group"

	// withdrawalAlertGroupID is used by the worker that emails operators about new withdrawal requests
	withdrawalAlertGroupID = "withdrawal-alert-group"

	// depositAuditGroupID is used by the worker that writes credited deposits to the activity log
	depositAuditGroupID = "deposit-audit-group"

	handlerAttempts = 3
)

// Our workers typically needs access to database and kafka event stream
// worker-specific dependency can be passed as argument to the worker
func New(wk *Worker) *Worker {
	retryWait := wk.RetryWait
	if retryWait == 0 {
		retryWait = 2 * time.Second
	}

	return &Worker{
		KafkaStream:       wk.KafkaStream,
		DB:                wk.DB,
		Ctx:               wk.Ctx,
		Helper:            wk.Helper,
		Mailer:            wk.Mailer,
		Logger:            wk.Logger,
		NotificationEmail: wk.NotificationEmail,
		RetryWait:         retryWait,
	}
}

// Start runs every worker in its own goroutine until Ctx is cancelled.
func (wk *Worker) Start() {
	go wk.ReconcileWorker()
	go wk.WithdrawalAlertWorker()
	go wk.DepositAuditWorker()
}

// consume polls topic as groupID and hands every message to handle, retrying
// a failing handler a few times before the message is given up on.
func (wk *Worker) consume(name, groupID, topic string, handle func(message []byte) error) {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: groupID,
		Topic:   topic,
	})
	if err != nil {
		wk.Logger.Error("error creating consumer", "worker", name, "error", err)
		return
	}
	defer consumer.Close()

	for {
		select {
		case <-wk.Ctx.Done():
			wk.Logger.Info("worker received cancellation signal, shutting down", "worker", name)
			return
		default:
			event := consumer.Poll(100)
			switch e := event.(type) {
			case *kafka.Message:
				err := wk.withRetry(func() error { return handle(e.Value) })
				if err != nil {
					wk.Logger.Error("giving up on message", "worker", name, "topic", topic, "key", string(e.Key), "error", err)
				}
			case kafka.Error:
				wk.Logger.Error("kafka error", "worker", name, "error", e)
			case *kafka.AssignedPartitions:
				consumer.Assign(e.Partitions)
			case *kafka.RevokedPartitions:
				consumer.Unassign()
			}
		}
	}
}

func (wk *Worker) withRetry(fn func() error) error {
	var err error
	for i := 1; i <= handlerAttempts; i++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}

		if i != handlerAttempts {
			select {
			case <-wk.Ctx.Done():
				return err
			case <-time.After(wk.RetryWait):
			}
		}
	}
	return err
}

// errMalformed marks messages that will never decode; retrying them is pointless.
type errMalformed struct{ err error }

func (e errMalformed) Error() string { return "malformed message: " + e.err.Error() }
func (e errMalformed) Unwrap() error { return e.err }

func retryable(err error) bool {
	var malformed errMalformed
	return !errors.As(err, &malformed)
}
