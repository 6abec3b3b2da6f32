package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"

	"github.com/solhub/solhub.go/db/models"
	"github.com/solhub/solhub.go/solana"
)

// bufPool is a classic buffer pool pattern that allows more clever reuse of
// heap memory. Instead of allocating new memory every time we encode an
// invoice we reuse buffers from this pool.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

const contentTypeJSON = "application/json"

type (
	// TransactionHandler processes one provider transaction event.
	TransactionHandler = func(ctx context.Context, notification *solana.TransactionNotification) error
	// SubscribeToInvoicesFunc hands out a channel of invoice state changes
	// plus the matching unsubscribe.
	SubscribeToInvoicesFunc = func() (chan models.Invoice, func(), error)
)

type Client interface {
	// SubscribeToTransactions consumes provider transaction events from the
	// transaction queue, an alternative to the HTTP webhook.
	SubscribeToTransactions(context.Context, TransactionHandler) error
	// StartPublishInvoices relays invoice state changes to the invoice exchange.
	StartPublishInvoices(context.Context, SubscribeToInvoicesFunc) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	conn *amqp.Connection

	// It is recommended that, when possible, publishers and consumers
	// use separate connections so that consumers are isolated from potential
	// flow control measures that may be applied to publishing connections.
	consumeChannel *amqp.Channel
	publishChannel *amqp.Channel

	logger *lecho.Logger

	invoiceExchange              string
	transactionExchange          string
	transactionConsumerQueueName string
}

type ClientOption = func(client *DefaultClient)

func WithInvoiceExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceExchange = exchange
	}
}

func WithTransactionExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.transactionExchange = exchange
	}
}

func WithTransactionConsumerQueueName(name string) ClientOption {
	return func(client *DefaultClient) {
		client.transactionConsumerQueueName = name
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

// Dial sets up a connection to rabbitmq with two channels that are ready to
// produce and consume
func Dial(uri string, options ...ClientOption) (Client, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}

	consumeChannel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	publishChannel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	client := &DefaultClient{
		conn: conn,

		consumeChannel: consumeChannel,
		publishChannel: publishChannel,

		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.DEBUG),
			lecho.WithTimestamp(),
		),

		invoiceExchange:              "solhub_invoice",
		transactionExchange:          "solana_transaction",
		transactionConsumerQueueName: "solana_transaction_consumer",
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

func (client *DefaultClient) Close() error { return client.conn.Close() }

func (client *DefaultClient) SubscribeToTransactions(ctx context.Context, handler TransactionHandler) error {
	err := client.consumeChannel.ExchangeDeclare(
		client.transactionExchange,
		// topic exchanges route messages to queues based on a routing key
		"topic",
		// Durable and Non-Auto-Deleted exchanges survive server restarts
		true,
		false,
		// Non-Internal exchanges accept direct publishing
		false,
		// Nowait: false, we want a server response confirming the declare
		false,
		nil,
	)
	if err != nil {
		return err
	}

	queue, err := client.consumeChannel.QueueDeclare(
		client.transactionConsumerQueueName,
		true,
		false,
		// Non-Exclusive: multiple solhub instances spread the load of
		// transaction events between them
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	err = client.consumeChannel.QueueBind(
		queue.Name,
		"transaction.#",
		client.transactionExchange,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	deliveryChan, err := client.consumeChannel.Consume(
		queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	client.logger.Infof("Starting transaction consumer from queue %s", queue.Name)
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case delivery, ok := <-deliveryChan:
			if !ok {
				return context.Canceled
			}
			notification := solana.TransactionNotification{}
			err := json.Unmarshal(delivery.Body, &notification)
			if err != nil {
				client.logger.Errorf("Error consuming transaction event: %v", err)
				delivery.Nack(false, false)
				continue
			}

			// the provider redelivers on Nack, the ingest path is idempotent
			if err = handler(ctx, &notification); err != nil {
				client.logger.Errorf("Error processing transaction event tx:%s: %v", notification.Signature, err)
				delivery.Nack(false, true)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (client *DefaultClient) StartPublishInvoices(ctx context.Context, subscribe SubscribeToInvoicesFunc) error {
	err := client.publishChannel.ExchangeDeclare(
		client.invoiceExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	invoiceChan, unsubscribe, err := subscribe()
	if err != nil {
		return err
	}
	defer unsubscribe()

	client.logger.Infof("Starting invoice publisher on exchange %s", client.invoiceExchange)
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case invoice, ok := <-invoiceChan:
			if !ok {
				return context.Canceled
			}
			if err := client.publishInvoice(ctx, invoice); err != nil {
				client.logger.Errorf("Error publishing invoice invoice_id:%s: %v", invoice.ID, err)
			}
		}
	}
}

func (client *DefaultClient) publishInvoice(ctx context.Context, invoice models.Invoice) error {
	payload := bufPool.Get().(*bytes.Buffer)
	payload.Reset()
	defer bufPool.Put(payload)

	err := json.NewEncoder(payload).Encode(&invoice)
	if err != nil {
		return err
	}

	routingKey := "invoice." + invoice.State
	client.logger.Debugf("Publishing invoice invoice_id:%s key:%s", invoice.ID, routingKey)
	return client.publishChannel.PublishWithContext(ctx,
		client.invoiceExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: contentTypeJSON,
			Body:        payload.Bytes(),
		},
	)
}
