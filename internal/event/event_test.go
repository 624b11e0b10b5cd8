package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.FATAL.Level())
}

func Test_Dispatch_FunctionHandlers(t *testing.T) {
	bus := event.New()
	id := uuid.New()

	received := make([]event.Payload, 0)
	bus.RegisterHandlerFunction(event.CONVERSION_COMPLETE, func(_ event.Event, p event.Payload) {
		received = append(received, p)
	})

	bus.Dispatch(event.CONVERSION_COMPLETE, id)
	bus.Dispatch(event.CONVERSION_FAILED, id)
	assert.Equal(t, []event.Payload{id}, received, "handler must only receive the event it registered for")
}

func Test_Dispatch_AsyncHandlers(t *testing.T) {
	bus := event.New()
	wg := &sync.WaitGroup{}
	wg.Add(1)

	bus.RegisterAsyncHandlerFunction(event.CONVERSION_FAILED, func(_ event.Event, _ event.Payload) { wg.Done() })
	bus.Dispatch(event.CONVERSION_FAILED, uuid.New())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler was not invoked")
	}
}

func Test_Dispatch_ChannelHandlers(t *testing.T) {
	bus := event.New()
	ch := make(event.HandlerChannel, 2)
	bus.RegisterHandlerChannel(ch, event.CONVERSION_UPDATE, event.CONVERSION_COMPLETE)

	update := event.ConversionUpdate{RequestID: uuid.New(), OperationID: uuid.New(), State: "DONE[7]"}
	bus.Dispatch(event.CONVERSION_UPDATE, update)
	bus.Dispatch(event.CONVERSION_COMPLETE, update.RequestID)

	require.Len(t, ch, 2)
	assert.Equal(t, event.HandlerEvent{Event: event.CONVERSION_UPDATE, Payload: update}, <-ch)
	assert.Equal(t, event.HandlerEvent{Event: event.CONVERSION_COMPLETE, Payload: update.RequestID}, <-ch)
}

func Test_Dispatch_RejectsIllegalPayloads(t *testing.T) {
	tests := []struct {
		summary string
		event   event.Event
		payload event.Payload
	}{
		{"update with uuid", event.CONVERSION_UPDATE, uuid.New()},
		{"complete with string", event.CONVERSION_COMPLETE, "not-a-uuid"},
		{"failed with nil", event.CONVERSION_FAILED, nil},
		{"unknown event", event.Event("conversion:unknown"), uuid.New()},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			bus := event.New()
			called := false
			bus.RegisterHandlerFunction(tt.event, func(_ event.Event, _ event.Payload) { called = true })

			bus.Dispatch(tt.event, tt.payload)
			assert.False(t, called)
		})
	}
}
