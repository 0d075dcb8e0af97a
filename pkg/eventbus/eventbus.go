// Package eventbus defines the in-process fan-out contract: after a
// successful import, one Event per non-empty result group is
// delivered to every registered subscriber, fire-and-forget.
package eventbus

import "context"

// Group names the seven result groups a successful import can broadcast.
type Group string

const (
	GroupAddresses           Group = "addresses"
	GroupAddressCoinBalances Group = "address_coin_balances"
	GroupBlocks              Group = "blocks"
	GroupInternalTxs         Group = "internal_transactions"
	GroupLogs                Group = "logs"
	GroupTokenTransfers      Group = "token_transfers"
	GroupTransactions        Group = "transactions"
)

// Event is one delivery: {chain_event, group, broadcast_type, payload}.
type Event struct {
	Group         Group
	BroadcastType string
	Payload       any
}

// Subscriber receives delivered events. Returning an error only
// affects that subscriber's own logging; it never fails the caller
// that published the event.
type Subscriber func(ctx context.Context, evt Event) error

// Bus is the fan-out registry the Importer publishes to after a
// successful all(...) call with broadcast requested.
type Bus interface {
	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn Subscriber) (unsubscribe func())
	// Publish delivers evt to every current subscriber concurrently,
	// best-effort. It never returns an error.
	Publish(ctx context.Context, evt Event)
}
