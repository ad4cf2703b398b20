// Package handler contains the Echo HTTP handlers of the public booking API
// and of the admin console.  Handlers bind and validate input, call a
// repository or the booking service and translate errors into statuses.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
)

// errorStatus maps a domain error to its HTTP status and client message.
// Unknown errors become 500 and are not echoed back.
func errorStatus(err error) (int, echo.Map) {
	var ve *service.ValidationError
	var su *service.SeatsUnavailableError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, echo.Map{"error": ve.Error(), "field": ve.Field}
	case errors.As(err, &su):
		return http.StatusConflict, echo.Map{"error": "some seats are no longer available", "unavailable_seats": su.SeatIDs}
	case errors.Is(err, service.ErrNoSeats), errors.Is(err, service.ErrUnknownAction):
		return http.StatusBadRequest, echo.Map{"error": err.Error()}
	case errors.Is(err, service.ErrBookingExpired):
		return http.StatusGone, echo.Map{"error": err.Error()}
	case errors.Is(err, service.ErrTripNotBookable),
		errors.Is(err, service.ErrBookingNotPending),
		errors.Is(err, service.ErrNotConfirmed):
		return http.StatusConflict, echo.Map{"error": err.Error()}
	case errors.Is(err, repository.ErrLocationNotFound),
		errors.Is(err, repository.ErrCompanyNotFound),
		errors.Is(err, repository.ErrLayoutNotFound),
		errors.Is(err, repository.ErrBusNotFound),
		errors.Is(err, repository.ErrSeatNotFound),
		errors.Is(err, repository.ErrRouteNotFound),
		errors.Is(err, repository.ErrTripNotFound),
		errors.Is(err, repository.ErrBookingNotFound):
		return http.StatusNotFound, echo.Map{"error": err.Error()}
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, echo.Map{"error": "already exists"}
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, echo.Map{"error": "referenced by other records"}
	}
	return http.StatusInternalServerError, echo.Map{"error": "internal error"}
}

// fail writes the mapped error response and logs server-side failures.
func fail(c echo.Context, log *slog.Logger, err error) error {
	code, body := errorStatus(err)
	if code >= http.StatusInternalServerError {
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	return c.JSON(code, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// queryUint parses an optional numeric query parameter; absent means 0.
func queryUint(c echo.Context, name string) (uint64, bool) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	return n, err == nil
}

// page reads limit/offset query parameters.
func page(c echo.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	offset, _ = strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
