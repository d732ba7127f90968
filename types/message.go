package types

import "context"

// Message is a single partitioned message delivered to a subscription.
type Message struct {
	// ID is the producer-assigned message id, used for JetStream de-duplication.
	ID string

	// Destination is the logical channel the message was sent to.
	Destination string

	// Partition is the partition index the message was routed to.
	Partition int

	// Key is the routing key supplied by the producer, if any.
	Key string

	// Payload is the opaque message body.
	Payload []byte

	// Headers carries any extra headers set by the producer.
	Headers map[string]string
}

// MessageHandler processes one message.
//
// Returning nil acknowledges the message. Returning an error hands it back
// to the transport for redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Headers set by the producer on every message.
const (
	// HeaderMsgID carries the message id; JetStream uses it for de-duplication.
	HeaderMsgID = "Nats-Msg-Id"

	// HeaderPartitionKey carries the routing key the partition was derived from.
	HeaderPartitionKey = "Partition-Key"
)
