// Package http is the thin inbound HTTP adapter: it accepts events and serves
// the read-side queries.
package http

import (
	"context"
	"errors"
	"net/http"

	"orderdispatch/internal/core/application/ingress"
	"orderdispatch/internal/core/application/usecases/queries"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type (
	EventSubmitter interface {
		Submit(ctx context.Context, raw ingress.RawEvent) (ingress.Receipt, error)
	}
	OrderReader interface {
		Handle(ctx context.Context, query queries.GetOrderQuery) (queries.GetOrderQueryResponse, error)
	}
	AvailableAgentsReader interface {
		Handle(ctx context.Context, query queries.GetAvailableAgentsQuery) ([]queries.GetAvailableAgentsQueryResponse, error)
	}
)

// Server coordinates between HTTP handlers and the application layer.
type Server struct {
	events          EventSubmitter
	getOrder        OrderReader
	availableAgents AvailableAgentsReader
}

func NewServer(events EventSubmitter, getOrder OrderReader, availableAgents AvailableAgentsReader) *Server {
	return &Server{
		events:          events,
		getOrder:        getOrder,
		availableAgents: availableAgents,
	}
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	api.POST("/events", s.SubmitEvent)
	api.GET("/orders/:id", s.GetOrder)
	api.GET("/agents/available", s.GetAvailableAgents)
}

func (s *Server) Health(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Healthy")
}

// SubmitEvent handles POST /api/v1/events. Accepted events are processed
// asynchronously, so success is 202 even for duplicates.
func (s *Server) SubmitEvent(ctx echo.Context) error {
	var raw ingress.RawEvent
	if err := ctx.Bind(&raw); err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "Invalid request body")
	}

	receipt, err := s.events.Submit(ctx.Request().Context(), raw)
	switch {
	case err == nil:
		return ctx.JSON(http.StatusAccepted, receipt)
	case errors.Is(err, ingress.ErrMalformedEvent):
		return errorJSON(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrAdmissionRejected):
		ctx.Response().Header().Set("Retry-After", "1")
		return errorJSON(ctx, http.StatusTooManyRequests, "Admission rejected")
	default:
		ctx.Logger().Errorf("submit event: %v", err)
		return errorJSON(ctx, http.StatusServiceUnavailable, "Event could not be accepted, retry later")
	}
}

// GetOrder handles GET /api/v1/orders/:id.
func (s *Server) GetOrder(ctx echo.Context) error {
	id, err := kernel.ParseID(ctx.Param("id"))
	if err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "Invalid order id")
	}
	query, err := queries.NewGetOrderQuery(id)
	if err != nil {
		return errorJSON(ctx, http.StatusBadRequest, "Invalid order id")
	}

	resp, err := s.getOrder.Handle(ctx.Request().Context(), query)
	if err != nil {
		if errors.Is(err, errs.ErrObjectNotFound) {
			return errorJSON(ctx, http.StatusNotFound, "Order not found")
		}
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to retrieve order")
	}

	return ctx.JSON(http.StatusOK, resp)
}

// GetAvailableAgents handles GET /api/v1/agents/available.
func (s *Server) GetAvailableAgents(ctx echo.Context) error {
	agents, err := s.availableAgents.Handle(ctx.Request().Context(), queries.NewGetAvailableAgentsQuery())
	if err != nil {
		return errorJSON(ctx, http.StatusInternalServerError, "Failed to retrieve agents")
	}
	return ctx.JSON(http.StatusOK, agents)
}

func errorJSON(ctx echo.Context, code int, message string) error {
	return ctx.JSON(code, Error{Code: code, Message: message})
}
