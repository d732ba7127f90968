// Package subscription runs the JetStream pull consumers behind a
// partitioned subscription.
//
// A DurableHelper owns one destination. For every partition the
// subscription currently owns it runs a pull loop on the shared durable
// consumer "{subscriber}-{destination}-{partition}", so delivery progress
// follows a partition from one owner to the next. Each message is checked
// against the ownership snapshot right before it is handled; a message for
// a partition that has moved away is NAK'd back to the stream for the new
// owner.
package subscription
