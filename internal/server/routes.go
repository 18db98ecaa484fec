package server

import (
	"errors"
	"net/http"
	"time"

	coreactor "github.com/berfenger/solaxgw2mqtt/internal/core/actor"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/service"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type switchBody struct {
	State *bool `json:"state"`
}

type numberBody struct {
	Value *float64 `json:"value"`
}

type errorBody struct {
	Error string `json:"error"`
}

type versionBody struct {
	Version  string    `json:"version"`
	Revision string    `json:"revision"`
	Dirty    bool      `json:"dirty"`
	Time     time.Time `json:"time"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)

	api := e.Group("/api")
	api.GET("/gateways", s.ListGatewaysHandler)
	api.GET("/gateways/:id", s.GetGatewayHandler)
	api.PUT("/gateways/:id/switch/:feature", s.SetSwitchHandler)
	api.PUT("/gateways/:id/number/:feature", s.SetNumberHandler)
	api.GET("/inverters/:id", s.GetInverterHandler)
	api.POST("/inverters/:id/settings", s.QueryInverterSettingsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, versionBody{
		Version:  versioninfo.Version,
		Revision: versioninfo.Revision,
		Dirty:    versioninfo.DirtyBuild,
		Time:     versioninfo.LastCommit,
	})
}

func (s *Server) ListGatewaysHandler(c echo.Context) error {
	res, err := s.request(domain.ListGatewaysRequest{})
	if err != nil {
		return s.errorResponse(c, err)
	}
	resp := res.(domain.ListGatewaysResponse)
	if resp.Gateways == nil {
		resp.Gateways = []domain.GatewaySnapshot{}
	}
	return c.JSON(http.StatusOK, resp.Gateways)
}

func (s *Server) GetGatewayHandler(c echo.Context) error {
	res, err := s.request(domain.GetGatewayStateRequest{GatewayId: c.Param("id")})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res.(domain.GetGatewayStateResponse).Snapshot)
}

func (s *Server) SetSwitchHandler(c echo.Context) error {
	var body switchBody
	if err := c.Bind(&body); err != nil || body.State == nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "body must be {\"state\": true|false}"})
	}
	_, err := s.request(domain.SetSwitchRequest{
		GatewayId: c.Param("id"),
		Feature:   domain.GatewayFeature(c.Param("feature")),
		Value:     *body.State,
	})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return s.GetGatewayHandler(c)
}

func (s *Server) SetNumberHandler(c echo.Context) error {
	var body numberBody
	if err := c.Bind(&body); err != nil || body.Value == nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "body must be {\"value\": number}"})
	}
	_, err := s.request(domain.SetNumberRequest{
		GatewayId: c.Param("id"),
		Feature:   domain.GatewayFeature(c.Param("feature")),
		Value:     *body.Value,
	})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return s.GetGatewayHandler(c)
}

func (s *Server) GetInverterHandler(c echo.Context) error {
	res, err := s.request(domain.GetInverterStateRequest{InverterId: c.Param("id")})
	if err != nil {
		return s.errorResponse(c, err)
	}
	resp := res.(domain.GetInverterStateResponse)
	return c.JSON(http.StatusOK, map[string]any{
		"id":        c.Param("id"),
		"online":    resp.Online,
		"status":    resp.Status,
		"info":      resp.Info,
		"settings":  resp.Settings,
		"last_seen": resp.LastSeen,
	})
}

func (s *Server) QueryInverterSettingsHandler(c echo.Context) error {
	if _, err := s.request(domain.QueryInverterSettingsRequest{InverterId: c.Param("id")}); err != nil {
		return s.errorResponse(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// request asks the master actor and unwraps the response error.
func (s *Server) request(msg any) (domain.ActorResponse, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, requestTimeout).Result()
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.ActorResponse)
	if !ok {
		return nil, errors.New("unexpected response")
	}
	if resp.HasResponseError() {
		return resp, resp.GetResponseError()
	}
	return resp, nil
}

func (s *Server) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coreactor.ErrUnknownGateway), errors.Is(err, coreactor.ErrUnknownInverter):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrFeatureDisabled), errors.Is(err, service.ErrFeatureNotWritable),
		errors.Is(err, service.ErrDemandOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, coreactor.ErrInverterBusDisabled):
		status = http.StatusConflict
	default:
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, errorBody{Error: err.Error()})
}
