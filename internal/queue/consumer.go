package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const auditQueueName = "booking.audit"

// StartAuditConsumer connects to RabbitMQ, binds a durable audit queue
// to every booking.* routing key on the booking.events exchange, and
// appends one line per event to logs/booking.log.  The function runs a
// reconnect loop with exponential backoff and keeps running across
// broker failures; processing errors are logged and the offending
// message rejected without requeue so the stream keeps flowing.
func StartAuditConsumer() error {
	url := BrokerURL()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("booking-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			log.Printf("booking-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("booking-consumer: set QoS failed: %v", err)
	}

	if err := ch.ExchangeDeclare(BookingExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(auditQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(auditQueueName, "booking.#", BookingExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(auditQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.RoutingKey, d.Body); err != nil {
			log.Printf("booking-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(routingKey string, body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "booking.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | booking_id=%d | user_id=%d | resource_id=%d | status=%s | window=[%s, %s)\n",
		ev.EmittedAt, routingKey, ev.BookingID, ev.UserID, ev.ResourceID, ev.Status, ev.StartTime, ev.EndTime)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
