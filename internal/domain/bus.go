package domain

// MessageBus routes messages between channels and the pipeline.
type MessageBus interface {
	Publish(evt ChatEvent)
	Subscribe() <-chan ChatEvent
	SendOutbound(msg OutboundMessage)
	OnOutbound(platform string, handler func(OutboundMessage))
	Close()
}
