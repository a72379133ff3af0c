package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type timelineEventResponse struct {
	Type            string    `json:"type"`
	Reason          string    `json:"reason,omitempty"`
	ExternalOrderID string    `json:"externalOrderId,omitempty"`
	Occurred        time.Time `json:"occurred"`
}

// orderTimeline: GET /api/orders/{orderID}/timeline.
// Для заказа без истории отдаётся пустой массив.
func orderTimeline(timeline TimelineReader, logger *log.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
		if orderID == "" {
			writeError(w, http.StatusBadRequest, "missing_order_id", "order id is required")
			return
		}

		events, err := timeline.List(r.Context(), orderID)
		if err != nil {
			logger.WithError(err).WithField("order_id", orderID).Error("list order timeline failed")
			writeError(w, http.StatusInternalServerError, "internal", "timeline is unavailable")
			return
		}

		resp := make([]timelineEventResponse, len(events))
		for i, e := range events {
			resp[i] = timelineEventResponse{
				Type:            e.Type,
				Reason:          e.Reason,
				ExternalOrderID: e.ExternalOrderID,
				Occurred:        e.Occurred.UTC(),
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
