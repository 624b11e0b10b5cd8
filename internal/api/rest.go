package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Verto/internal/api/capabilities"
	"github.com/hbomb79/Verto/internal/api/conversions"
	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/internal/http/websocket"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080" validate:"hostname_port"`

		// InputRoot is the directory conversion requests may read server
		// side inputs from. Path inputs are rejected when empty.
		InputRoot string `yaml:"input_root" env:"API_INPUT_ROOT"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// Service is the union of the behaviour the gateway requires
	// from the conversion service.
	Service interface {
		conversions.Service
		Capabilities() capability.Table
	}

	requestValidator struct {
		validate *validator.Validate
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes Verto exposes, and to manage the activity websocket.
	RestGateway struct {
		*broadcaster
		config                 *RestConfig
		ec                     *echo.Echo
		socket                 *websocket.SocketHub
		conversionController   controller
		capabilitiesController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the controllers.
func NewRestGateway(config *RestConfig, service Service, events event.EventHandler) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Validator = &requestValidator{validate: validator.New()}

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:            newBroadcaster(socket, events),
		config:                 config,
		ec:                     ec,
		socket:                 socket,
		conversionController:   conversions.New(service, config.InputRoot),
		capabilitiesController: capabilities.New(service.Capabilities()),
	}

	socket.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"media_kinds": []capability.MediaKind{capability.Video, capability.Audio, capability.Image}}
	})
	socket.BindCommand(COMMAND_CAPABILITIES, func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		if err := message.ValidateArguments(map[string]string{"kind": "string"}); err != nil {
			return err
		}

		dto, ok := capabilities.NewKindDto(service.Capabilities(), capability.MediaKind(message.Body["kind"].(string)))
		if !ok {
			return errors.New("unknown media kind")
		}

		return hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": dto}, websocket.Response))
	})

	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/verto/v1/activity/ws/", func(ec echo.Context) error {
		if err := gateway.socket.UpgradeToSocket(ec.Response(), ec.Request()); errors.Is(err, websocket.ErrHubOffline) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}

		return nil
	})

	gateway.conversionController.SetRoutes(ec.Group("/api/verto/v1/conversions"))
	gateway.capabilitiesController.SetRoutes(ec.Group("/api/verto/v1/capabilities"))

	return gateway
}

// Handler returns the HTTP handler serving the gateway's routes.
func (gateway *RestGateway) Handler() http.Handler { return gateway.ec }

// Run starts the HTTP server, activity websocket and event broadcaster, blocking
// until the context provided is cancelled or the server fails.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	defer ctxCancel(nil)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.INFO, "Starting REST gateway on %s\n", gateway.config.HostAddr)
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.broadcaster.run(ctx)
	}()

	wg.Wait()

	// Parent context cancellation is not an error case we should report
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
