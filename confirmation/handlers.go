package confirmation

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/metrics"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	ActionTrack   = "track"
	ActionConfirm = "confirm"
)

// Handler serves the public, unauthenticated /confirm link sent to suppliers.
type Handler struct {
	Service *Service
	Logger  *logrus.Logger
	// timezone of the timestamps shown on result pages
	Location *time.Location
}

func NewHandler(service *Service, logger *logrus.Logger, loc *time.Location) *Handler {
	return &Handler{Service: service, Logger: logger, Location: loc}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/confirm", h.Confirm)
}

func (h *Handler) logger() *logrus.Logger {
	if h.Logger == nil {
		return config.GetLogger()
	}
	return h.Logger
}

func (h *Handler) Confirm(c *gin.Context) {
	action := strings.ToLower(strings.TrimSpace(c.Query("action")))
	if strings.TrimSpace(c.Query("id")) == "" {
		label := action
		if label != ActionTrack && label != ActionConfirm {
			label = "unknown"
		}
		metrics.RecordConfirmation(label, "bad_request")
		c.String(http.StatusBadRequest, "missing id")
		return
	}
	switch action {
	case ActionTrack:
		h.track(c)
	case ActionConfirm:
		h.confirm(c)
	default:
		metrics.RecordConfirmation("unknown", "bad_request")
		c.String(http.StatusBadRequest, "invalid action")
	}
}

// pixel is returned for every track request that carries an id, whatever happened
func (h *Handler) track(c *gin.Context) {
	if id, err := strconv.Atoi(strings.TrimSpace(c.Query("id"))); err == nil && id > 0 {
		h.Service.Track(c.Request.Context(), id, c.ClientIP(), c.Request.UserAgent())
	}
	metrics.RecordConfirmation(ActionTrack, "ok")
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

func (h *Handler) confirm(c *gin.Context) {
	idParam := strings.TrimSpace(c.Query("id"))
	id, err := strconv.Atoi(idParam)
	if err != nil || id <= 0 {
		metrics.RecordConfirmation(ActionConfirm, string(OutcomeNotFound))
		h.renderPage(c, http.StatusOK, NotFoundPage())
		return
	}

	result, err := h.Service.Confirm(c.Request.Context(), ConfirmRequest{
		OrderId:        id,
		InstallmentIds: utils.ParseIDList(c.Query("installments")),
		SourceIp:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		metrics.RecordConfirmation(ActionConfirm, "error")
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.LogError(h.logger(), "handlers.go", "confirm", "Service.Confirm", map[string]interface{}{
			"purchase_order_id": id,
			"correlation_id":    cid,
		}, err)
		h.renderPage(c, http.StatusServiceUnavailable, ErrorPage())
		return
	}

	metrics.RecordConfirmation(ActionConfirm, string(result.Outcome))
	switch result.Outcome {
	case OutcomeConfirmed:
		h.renderPage(c, http.StatusOK, ConfirmedPage(result.OrderFolio, len(result.ConfirmedInstallments)))
	case OutcomeAlreadyConfirmed:
		h.renderPage(c, http.StatusOK, AlreadyConfirmedPage(result.ConfirmedAt, h.Location))
	default:
		h.renderPage(c, http.StatusOK, NotFoundPage())
	}
}

func (h *Handler) renderPage(c *gin.Context, status int, page Page) {
	body, err := RenderPage(page)
	if err != nil {
		config.LogError(h.logger(), "handlers.go", "renderPage", "RenderPage", page.Title, err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", body)
}
