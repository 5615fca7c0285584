package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/broker"
	"github.com/ykarpov/brokersim/pkg/common"
	"github.com/ykarpov/brokersim/pkg/instruments"
)

var (
	errMissingInstrument = errors.New("engine, market and sec_id query params required")
	errMissingRange      = errors.New("from/to query params required")
)

// Handler is the HTTP surface of one broker session. Every route delegates
// to the session; the session's own mutex provides the consistency, the
// handler only translates wire shapes.
type Handler struct {
	router  *gin.Engine
	session *broker.Session
	hub     *hub
	logger  *zap.Logger
}

func NewHandler(session *broker.Session, logger *zap.Logger) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:  router,
		session: session,
		hub:     newHub(session, logger),
		logger:  logger,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.router.GET("/ws", h.serveWS)

	v1 := h.router.Group("/api/v1")
	{
		v1.POST("/configure", h.configure)
		v1.POST("/step", h.step)
		v1.GET("/candles", h.getCandles)
		v1.GET("/instrument", h.getInstrument)
		v1.POST("/last-prices", h.getLastPrices)

		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders", h.getOrders)
		v1.GET("/orders/:id", h.getOrderState)

		v1.GET("/portfolio", h.getPortfolio)
		v1.GET("/operations", h.getOperations)
	}
}

func (h *Handler) configure(c *gin.Context) {
	var payload configurePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	opts, err := payload.toOptions()
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.session.Configure(opts); err != nil {
		writeSessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) step(c *gin.Context) {
	active, now, err := h.session.Step(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	resp := stepResponse{Active: active}
	if active {
		resp.Time = &now
		h.hub.publish(c.Request.Context())
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getCandles(c *gin.Context) {
	var ref instrumentRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if ref.SecID == "" || ref.Engine == "" || ref.Market == "" {
		writeError(c, http.StatusBadRequest, errMissingInstrument)
		return
	}
	from, errFrom := time.Parse(time.RFC3339, c.Query("from"))
	to, errTo := time.Parse(time.RFC3339, c.Query("to"))
	if errFrom != nil || errTo != nil {
		writeError(c, http.StatusBadRequest, errMissingRange)
		return
	}

	candles, err := h.session.GetCandles(c.Request.Context(),
		ref.key(), common.Interval(c.Query("interval")), from, to)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

func (h *Handler) getInstrument(c *gin.Context) {
	var ref instrumentRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	idType, err := parseIDType(c.Query("id_type"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	instrument, err := h.session.GetInstrument(c.Request.Context(), instruments.Request{
		IDType:    idType,
		Key:       ref.key(),
		ClassCode: c.Query("class_code"),
	})
	if err != nil {
		writeError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, instrument)
}

func (h *Handler) getLastPrices(c *gin.Context) {
	var payload lastPricesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	keys := make([]common.InstrumentKey, len(payload.Instruments))
	for i, ref := range payload.Instruments {
		keys[i] = ref.key()
	}
	prices, err := h.session.GetLastPrices(c.Request.Context(), keys)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_prices": prices})
}

func (h *Handler) placeOrder(c *gin.Context) {
	var payload orderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	order, err := h.session.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrders(c *gin.Context) {
	orders, err := h.session.GetOrders()
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrderState(c *gin.Context) {
	order, err := h.session.GetOrderState(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getPortfolio(c *gin.Context) {
	portfolio, err := h.session.GetPortfolio(c.Request.Context())
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

func (h *Handler) getOperations(c *gin.Context) {
	secID := c.Query("sec_id")
	if secID == "" {
		writeError(c, http.StatusBadRequest, errMissingInstrument)
		return
	}
	state, err := parseOperationState(c.Query("state"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ops, err := h.session.GetOperations(secID, state)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// writeSessionError maps the broker's single precondition error kind to a
// client error, anything else to a gateway failure.
func writeSessionError(c *gin.Context, err error) {
	if errors.Is(err, broker.ErrPrecondition) {
		writeError(c, http.StatusConflict, err)
		return
	}
	writeError(c, http.StatusBadGateway, err)
}
