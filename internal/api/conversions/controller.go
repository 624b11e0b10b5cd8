package conversions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/conversion"
	"github.com/hbomb79/Verto/internal/history"
	"github.com/hbomb79/Verto/internal/service"
	"github.com/labstack/echo/v4"
)

type (
	Service interface {
		Convert(ctx context.Context, request service.Request) (service.Result, error)
		History(limit int) ([]history.Entry, error)
		RequestHistory(requestID uuid.UUID) ([]history.Entry, error)
	}

	Controller struct {
		service   Service
		inputRoot string
	}
)

// New creates the conversion controller. Inputs referring to a server path
// must reside beneath inputRoot; if inputRoot is empty, path inputs are
// rejected.
func New(service Service, inputRoot string) *Controller {
	if inputRoot != "" {
		if abs, err := filepath.Abs(inputRoot); err == nil {
			inputRoot = abs
		}
	}

	return &Controller{service: service, inputRoot: inputRoot}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/history/", controller.history)
}

func (controller *Controller) create(ec echo.Context) error {
	var request CreateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Malformed conversion request: %v", err))
	}
	if err := ec.Validate(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid conversion request: %v", err))
	}
	if err := request.check(controller.inputRoot); err != nil {
		if errors.Is(err, ErrPathInputsDisabled) || errors.Is(err, ErrPathOutsideRoot) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := controller.service.Convert(ec.Request().Context(), request.toModel())
	if err != nil {
		switch {
		case errors.Is(err, conversion.ErrNoInputs),
			errors.Is(err, conversion.ErrDuplicateInput),
			errors.Is(err, conversion.ErrUnknownArtworkSource),
			errors.Is(err, conversion.ErrRawPathMultiSegment),
			errors.Is(err, service.ErrInvalidOverrides):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, conversion.ErrInvocationFailed):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Conversion failed: %v", err))
		}
	}

	return ec.JSON(http.StatusCreated, NewResultDto(result))
}

func (controller *Controller) history(ec echo.Context) error {
	var (
		entries []history.Entry
		err     error
	)

	if raw := ec.QueryParam("request_id"); raw != "" {
		requestID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request_id: %v", parseErr))
		}

		entries, err = controller.service.RequestHistory(requestID)
	} else {
		limit := 0
		if raw := ec.QueryParam("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
			}
		}

		entries, err = controller.service.History(limit)
	}

	if errors.Is(err, service.ErrHistoryUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	} else if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to list history: %v", err))
	}

	return ec.JSON(http.StatusOK, entries)
}
