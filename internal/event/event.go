// A collection of event names and common methods used to dispatch the events, typically
// redirecting the handling to a gateway method or other method via the `Handler` interface.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/pkg/logger"
)

var log = logger.Get("Events")

var ErrUnknownEvent = errors.New("event type not recognized for validation")

// Events emitted by the conversion service that may be consumed by other, silo'd
// parts of Verto (such as the activity websocket).
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	// ConversionUpdate is the payload of a CONVERSION_UPDATE event, emitted
	// each time an operation of a request transitions state.
	ConversionUpdate struct {
		RequestID   uuid.UUID `json:"request_id"`
		OperationID uuid.UUID `json:"operation_id"`
		State       string    `json:"state"`
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		*sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	CONVERSION_UPDATE   Event = "conversion:update"
	CONVERSION_COMPLETE Event = "conversion:complete"
	CONVERSION_FAILED   Event = "conversion:failed"
)

func New() EventCoordinator {
	return &eventHandler{
		RWMutex:      &sync.RWMutex{},
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the handler channel,
// then the thread dispatching the event will also be BLOCKED. Buffer the handler channels
// appropriately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()

	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction takes an event type and a handler method which will be
// called with the payload for the event whenever it is dispatched.
// The handle provided should return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be
// called inside of a goroutine when the event is dispatched.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()

	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and dispatches the payload to the handlers
// registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking, or if channel
// handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := validatePayload(event, payload); err != nil {
		log.Emit(logger.ERROR, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.RLock()
	fns := handler.fnHandlers[event]
	chans := handler.chanHandlers[event]
	handler.RUnlock()

	for _, handle := range fns {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	message := HandlerEvent{event, payload}
	for _, handle := range chans {
		handle <- message
	}
}

// validatePayload ensures that the payload provided is valid for the event specified. An error
// is returned if the payload is not valid, and the event must not be sent to the registered
// handlers in this case.
func validatePayload(event Event, payload Payload) error {
	payloadTypeName := "Nil"
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	}

	switch event {
	case CONVERSION_UPDATE:
		if _, ok := payload.(ConversionUpdate); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected ConversionUpdate payload", payloadTypeName, event)
		}

		return nil
	case CONVERSION_COMPLETE, CONVERSION_FAILED:
		if _, ok := payload.(uuid.UUID); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected uuid.UUID payload", payloadTypeName, event)
		}

		return nil
	}

	return ErrUnknownEvent
}
