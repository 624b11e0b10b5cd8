package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/Verto/pkg/logger"
)

var (
	socketLogger = logger.Get("WebSocket")

	ErrHubOffline = errors.New("socket hub is not running")
)

type SocketHandler func(*SocketHub, *SocketMessage) error

// SocketHub is responsible for upgrading HTTP requests to websockets, and
// for pushing messages to (and receiving commands from) the connected
// clients. All client bookkeeping happens on the goroutine running Start.
type SocketHub struct {
	handlers           map[string]SocketHandler
	upgrader           *websocket.Upgrader
	clients            map[uuid.UUID]*socketClient
	registerCh         chan *socketClient
	deregisterCh       chan *socketClient
	sendCh             chan *SocketMessage
	receiveCh          chan *SocketMessage
	doneCh             chan struct{}
	connectionCallback func() map[string]interface{}
	started            atomic.Bool
	running            atomic.Bool
}

func New() *SocketHub {
	return &SocketHub{
		handlers: make(map[string]SocketHandler),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:      make(map[uuid.UUID]*socketClient),
		registerCh:   make(chan *socketClient),
		deregisterCh: make(chan *socketClient),
		sendCh:       make(chan *SocketMessage),
		receiveCh:    make(chan *SocketMessage),
		doneCh:       make(chan struct{}),
	}
}

// WithConnectionCallback sets a callback that is executed each time a new client
// connects to this hub. The map returned is sent to the client in its welcome
// message, so it does not need to wait for an update to learn the current state.
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]interface{}) {
	hub.connectionCallback = callback
}

// BindCommand binds the command provided to a socket handler. Commands
// must be bound before the hub is started.
func (hub *SocketHub) BindCommand(command string, handler SocketHandler) *SocketHub {
	hub.handlers[command] = handler
	return hub
}

func (hub *SocketHub) Running() bool { return hub.running.Load() }

// Start runs the hub until the context provided is cancelled, at which point
// every connected client is closed. A hub can only be started once.
func (hub *SocketHub) Start(ctx context.Context) {
	if ctx.Err() != nil {
		socketLogger.Emit(logger.STOP, "Refusing to start socket hub as provided context is already cancelled\n")
		return
	}
	if !hub.started.CompareAndSwap(false, true) {
		socketLogger.Emit(logger.WARNING, "Attempting to start socket hub that has already been started! Ignoring request.\n")
		return
	}

	hub.running.Store(true)

	socketLogger.Emit(logger.INFO, "Opening socket hub\n")
	defer hub.close()
	for {
		select {
		case message := <-hub.sendCh:
			hub.deliver(message)
		case message := <-hub.receiveCh:
			go hub.handleMessage(message)
		case client := <-hub.registerCh:
			if _, ok := hub.clients[client.id]; ok {
				socketLogger.Emit(logger.ERROR, "Attempted to register client that is already registered (duplicate uuid)!\n")
				client.Close()
				continue
			}

			hub.clients[client.id] = client
			socketLogger.Emit(logger.NEW, "Registered new client {%v}\n", client.id)
		case client := <-hub.deregisterCh:
			if _, ok := hub.clients[client.id]; !ok {
				socketLogger.Emit(logger.WARNING, "Attempted to deregister unknown client {%v}\n", client.id)
				continue
			}

			delete(hub.clients, client.id)
			socketLogger.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)
		case <-ctx.Done():
			socketLogger.Emit(logger.REMOVE, "Shutting down socket hub! Closing all clients.\n")
			return
		}
	}
}

// Send queues the message provided for delivery. A message with a Target is only
// sent to the client with a matching ID, otherwise it is broadcast to all clients.
func (hub *SocketHub) Send(message *SocketMessage) error {
	if !hub.running.Load() {
		return ErrHubOffline
	}

	select {
	case hub.sendCh <- message:
		return nil
	case <-hub.doneCh:
		return ErrHubOffline
	}
}

// UpgradeToSocket upgrades the HTTP request to a websocket, registers the new
// client with the hub and blocks until the client disconnects.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) error {
	if !hub.running.Load() {
		return ErrHubOffline
	}

	sock, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: %v\n", err)
		return err
	}

	client := &socketClient{id: uuid.New(), socket: sock}
	if !hub.submit(hub.registerCh, client) {
		client.Close()
		return ErrHubOffline
	}
	defer func() {
		hub.submit(hub.deregisterCh, client)
		client.Close()
	}()

	body := make(map[string]interface{})
	if hub.connectionCallback != nil {
		for k, v := range hub.connectionCallback() {
			body[k] = v
		}
	}
	body["client"] = client.id

	target := client.id
	if err := hub.Send(&SocketMessage{Title: "CONNECTION_ESTABLISHED", Body: body, Target: &target, Type: Welcome}); err != nil {
		return err
	}

	if err := client.Read(hub.receiveCh, hub.doneCh); err != nil {
		socketLogger.Emit(logger.WARNING, "Client {%v} closed, error: %v\n", client.id, err)
	}

	return nil
}

func (hub *SocketHub) submit(ch chan *socketClient, client *socketClient) bool {
	select {
	case ch <- client:
		return true
	case <-hub.doneCh:
		return false
	}
}

func (hub *SocketHub) close() {
	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = make(map[uuid.UUID]*socketClient)
	hub.running.Store(false)
	close(hub.doneCh)
	socketLogger.Emit(logger.STOP, "Socket hub is now closed!\n")
}

func (hub *SocketHub) deliver(message *SocketMessage) {
	if message.Target == nil {
		for _, client := range hub.clients {
			if err := client.SendMessage(message); err != nil {
				socketLogger.Emit(logger.WARNING, "Failed to broadcast message to client {%v}: %v\n", client.id, err)
			}
		}

		return
	}

	client, ok := hub.clients[*message.Target]
	if !ok {
		socketLogger.Emit(logger.WARNING, "Attempted to send message to target {%v}, but no matching client was found.\n", *message.Target)
		return
	}

	if err := client.SendMessage(message); err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to send message to target {%v}: %v\n", *message.Target, err)
	}
}

// handleMessage forwards the command to the bound handler if one exists,
// replying with an error to the origin otherwise.
func (hub *SocketHub) handleMessage(command *SocketMessage) {
	if command.Type != Command {
		socketLogger.Emit(logger.WARNING, "Received message of type %v from client {%v}, only commands may be sent to the server\n", command.Type, command.Origin)
		return
	}

	replyWithError := func(err string) {
		reply := command.FormReply("COMMAND_FAILURE", map[string]interface{}{"error": err}, ErrorResponse)
		if sendErr := hub.Send(reply); sendErr != nil {
			socketLogger.Emit(logger.WARNING, "Failed to reply to command '%v': %v\n", command.Title, sendErr)
		}
	}

	handler, ok := hub.handlers[command.Title]
	if !ok {
		socketLogger.Emit(logger.WARNING, "No handler found for command '%v'\n", command.Title)
		replyWithError("Unknown command")
		return
	}

	if err := handler(hub, command); err != nil {
		socketLogger.Emit(logger.ERROR, "Handler for command '%v' returned error - %v\n", command.Title, err)
		replyWithError(err.Error())
		return
	}

	socketLogger.Emit(logger.SUCCESS, "Handler for command '%v' executed successfully\n", command.Title)
}
