package api

import (
	"context"

	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/internal/http/websocket"
	"github.com/hbomb79/Verto/pkg/logger"
)

const (
	TITLE_CONVERSION_UPDATE   = "CONVERSION_UPDATE"
	TITLE_CONVERSION_COMPLETE = "CONVERSION_COMPLETE"
	TITLE_CONVERSION_FAILED   = "CONVERSION_FAILED"

	COMMAND_CAPABILITIES = "CAPABILITIES"

	eventBufferSize = 32
)

// broadcaster forwards conversion events from the event bus to every
// client connected to the activity websocket. Events are queued without
// blocking the dispatcher; if the queue is full (for example because the
// gateway is not running) the event is dropped.
type broadcaster struct {
	socketHub *websocket.SocketHub
	eventChan event.HandlerChannel
}

func newBroadcaster(socketHub *websocket.SocketHub, events event.EventHandler) *broadcaster {
	hub := &broadcaster{socketHub: socketHub, eventChan: make(event.HandlerChannel, eventBufferSize)}
	for _, ev := range []event.Event{event.CONVERSION_UPDATE, event.CONVERSION_COMPLETE, event.CONVERSION_FAILED} {
		events.RegisterHandlerFunction(ev, hub.enqueue)
	}

	return hub
}

func (hub *broadcaster) enqueue(ev event.Event, payload event.Payload) {
	select {
	case hub.eventChan <- event.HandlerEvent{Event: ev, Payload: payload}:
	default:
		log.Emit(logger.VERBOSE, "Activity queue full, dropping %s event\n", ev)
	}
}

func (hub *broadcaster) run(ctx context.Context) {
	for {
		select {
		case ev := <-hub.eventChan:
			hub.handle(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (hub *broadcaster) handle(ev event.HandlerEvent) {
	switch ev.Event {
	case event.CONVERSION_UPDATE:
		hub.broadcast(TITLE_CONVERSION_UPDATE, ev.Payload)
	case event.CONVERSION_COMPLETE:
		hub.broadcast(TITLE_CONVERSION_COMPLETE, map[string]interface{}{"request_id": ev.Payload})
	case event.CONVERSION_FAILED:
		hub.broadcast(TITLE_CONVERSION_FAILED, map[string]interface{}{"request_id": ev.Payload})
	default:
		log.Emit(logger.WARNING, "Broadcaster received unexpected event %s\n", ev.Event)
	}
}

func (hub *broadcaster) broadcast(title string, update any) {
	if !hub.socketHub.Running() {
		return
	}

	err := hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
	if err != nil {
		log.Emit(logger.WARNING, "Failed to broadcast %s: %v\n", title, err)
	}
}
