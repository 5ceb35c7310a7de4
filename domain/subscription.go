package domain

// Subscription is one multiplexed topic on a venue stream client.
type Subscription[T any] struct {
	Stream      <-chan T
	Unsubscribe func()
	Topic       string
}
