package domain

// MessageBus hands inbound events from channels to the router.
type MessageBus interface {
	Publish(evt Event)
	Subscribe() <-chan Event
	Close()
}
