package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// PromotionHandler — CRUD промоакций для админки.
type PromotionHandler struct {
	svc    PromotionService
	logger *log.Entry
}

// NewPromotionHandler создаёт обработчик промоакций.
func NewPromotionHandler(svc PromotionService, logger *log.Entry) *PromotionHandler {
	return &PromotionHandler{svc: svc, logger: logger}
}

type promotionPayload struct {
	ID                    string                 `json:"id,omitempty"`
	Name                  string                 `json:"name"`
	CouponCode            string                 `json:"couponCode,omitempty"`
	Enabled               bool                   `json:"enabled"`
	StartsAt              *time.Time             `json:"startsAt,omitempty"`
	EndsAt                *time.Time             `json:"endsAt,omitempty"`
	Conditions            []domain.PromotionRule `json:"conditions"`
	Actions               []domain.PromotionRule `json:"actions"`
	PerCustomerUsageLimit int                    `json:"perCustomerUsageLimit,omitempty"`
	CreatedAt             *time.Time             `json:"createdAt,omitempty"`
	UpdatedAt             *time.Time             `json:"updatedAt,omitempty"`
}

func (p promotionPayload) toDomain() domain.Promotion {
	return domain.Promotion{
		ID:                    p.ID,
		Name:                  p.Name,
		CouponCode:            p.CouponCode,
		Enabled:               p.Enabled,
		StartsAt:              p.StartsAt,
		EndsAt:                p.EndsAt,
		Conditions:            p.Conditions,
		Actions:               p.Actions,
		PerCustomerUsageLimit: p.PerCustomerUsageLimit,
	}
}

func newPromotionPayload(p domain.Promotion) promotionPayload {
	out := promotionPayload{
		ID:                    p.ID,
		Name:                  p.Name,
		CouponCode:            p.CouponCode,
		Enabled:               p.Enabled,
		StartsAt:              p.StartsAt,
		EndsAt:                p.EndsAt,
		Conditions:            p.Conditions,
		Actions:               p.Actions,
		PerCustomerUsageLimit: p.PerCustomerUsageLimit,
	}
	if out.Conditions == nil {
		out.Conditions = []domain.PromotionRule{}
	}
	if out.Actions == nil {
		out.Actions = []domain.PromotionRule{}
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		out.CreatedAt = &created
	}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}

func newPromotionList(items []domain.Promotion) []promotionPayload {
	out := make([]promotionPayload, 0, len(items))
	for _, p := range items {
		out = append(out, newPromotionPayload(p))
	}
	return out
}

// List — GET /api/promotions.
func (h *PromotionHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.svc.List(r.Context())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPromotionList(items))
	}
}

// Active — GET /api/promotions/active.
func (h *PromotionHandler) Active() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.svc.Active(r.Context())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPromotionList(items))
	}
}

// Get — GET /api/promotions/{id}.
func (h *PromotionHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		promo, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPromotionPayload(promo))
	}
}

// Create — POST /api/promotions.
func (h *PromotionHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req promotionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		promo, err := h.svc.Create(r.Context(), req.toDomain())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newPromotionPayload(promo))
	}
}

// Update — PUT /api/promotions/{id}. ID из пути важнее ID в теле.
func (h *PromotionHandler) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req promotionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		req.ID = chi.URLParam(r, "id")
		promo, err := h.svc.Update(r.Context(), req.toDomain())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPromotionPayload(promo))
	}
}

// Delete — DELETE /api/promotions/{id}.
func (h *PromotionHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			h.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *PromotionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPromotionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrPromotionNameMissing), errors.Is(err, domain.ErrPromotionPeriod):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, domain.ErrPromotionCouponTaken):
		writeError(w, http.StatusConflict, "coupon_taken", err.Error())
	default:
		h.logger.WithError(err).Error("promotion request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
