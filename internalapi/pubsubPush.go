package internalapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/sirupsen/logrus"
)

// PubSubPushEnvelope is the body Pub/Sub POSTs to a push subscription endpoint.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		ID         string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ReconciliationTrigger is the message published to request a run.
type ReconciliationTrigger struct {
	RequestedBy string `json:"requested_by"`
}

// PubSubPush runs the reconciliation for a push delivery. Malformed messages are acked with 204
// so Pub/Sub drops them; a failed run answers 500 so the message is redelivered, which is safe
// because runs are idempotent.
func (h *Handlers) PubSubPush(c *gin.Context) {
	if !utils.BoolFromEnvDefault("ENABLE_PUBSUB_PUSH_ENDPOINT", true) {
		c.Status(http.StatusNoContent)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	var envelope PubSubPushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger().WithField("field", "PubSubPush").Warn("dropping malformed push envelope")
		c.Status(http.StatusNoContent)
		return
	}
	var trigger ReconciliationTrigger
	if len(envelope.Message.Data) > 0 {
		if err := json.Unmarshal(envelope.Message.Data, &trigger); err != nil {
			h.logger().WithFields(logrus.Fields{
				"field":      "PubSubPush",
				"message_id": envelope.Message.ID,
			}).Warn("dropping malformed trigger message")
			c.Status(http.StatusNoContent)
			return
		}
	}

	log := h.logger().WithFields(logrus.Fields{
		"field":        "PubSubPush",
		"message_id":   envelope.Message.ID,
		"requested_by": trigger.RequestedBy,
	})
	result, err := h.Reconciler.Run(c.Request.Context())
	if err != nil {
		config.LogError(h.logger(), "pubsubPush.go", "PubSubPush", "Reconciler.Run", envelope.Message.ID, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	log.WithField("run_id", result.RunId).Info("reconciliation triggered by pubsub finished")
	c.Status(http.StatusNoContent)
}
