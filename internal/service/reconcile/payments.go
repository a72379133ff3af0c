package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// addPayment переводит заказ к оплате, если нужно, и прикрепляет платёж с метаданными провайдера.
// Возвращает обновлённый заказ.
func (r *reconcileRun) addPayment(ctx context.Context, order domain.Order, status domain.PaymentStatus) (domain.Order, error) {
	if !order.State.ArrangingPayment() {
		from := order.State
		transitioned, err := r.tx.Orders.TransitionState(ctx, order.ID, domain.OrderStateArrangingPayment)
		if err != nil {
			reason := err.Error()
			var transitionErr *domain.TransitionError
			if errors.As(err, &transitionErr) {
				reason = transitionErr.Reason
			}
			return domain.Order{}, &domain.StateTransitionError{
				OrderCode: order.Code,
				From:      from,
				To:        domain.OrderStateArrangingPayment,
				Reason:    reason,
			}
		}
		if err := r.emitStateChange(ctx, from, transitioned); err != nil {
			return domain.Order{}, err
		}
		order = transitioned
	}

	amount := r.external.Amount.MinorUnits()
	updated, err := r.tx.Orders.AddPayment(ctx, order.ID, domain.PaymentInput{
		Method:        r.method.Code,
		TransactionID: r.external.ID,
		AmountMinor:   amount,
		Status:        status,
		Metadata:      r.external.PaymentMetadata(),
	})
	if err != nil {
		return domain.Order{}, &domain.PaymentAttachError{
			OrderCode:     order.Code,
			TransactionID: r.external.ID,
			Err:           err,
		}
	}

	r.logger.WithFields(log.Fields{
		"amount_minor":   amount,
		"payment_status": status,
		"order_state":    updated.State,
	}).Info("payment added to order")

	if err := r.emit(ctx, updated, domain.EventPaymentAdded, map[string]any{
		"transaction_id": r.external.ID,
		"method":         r.method.Code,
		"amount_minor":   amount,
		"currency":       r.external.Amount.Currency,
		"status":         status,
	}); err != nil {
		return domain.Order{}, err
	}
	if err := r.emitStateChange(ctx, order.State, updated); err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// settleExistingPayment списывает платёж, созданный транзакцией провайдера.
// Платежи перечитываются: переданный заказ может быть устаревшим.
func (r *reconcileRun) settleExistingPayment(ctx context.Context, order domain.Order) error {
	payments, err := r.tx.Orders.ListPayments(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list payments of order %s: %w", order.Code, err)
	}

	var payment *domain.Payment
	for i := range payments {
		if payments[i].TransactionID == r.external.ID {
			payment = &payments[i]
			break
		}
	}
	if payment == nil {
		return &domain.PaymentNotFoundError{OrderCode: order.Code, TransactionID: r.external.ID}
	}

	// Деньги ещё только зарезервированы: списываем их у провайдера.
	if !r.external.Captured() && payment.Status == domain.PaymentStatusAuthorized {
		captureStart := time.Now()
		err := r.client.CaptureOrder(ctx, r.external.ID)
		if r.c.metrics != nil {
			r.c.metrics.RecordProviderCall("capture_order", err, time.Since(captureStart))
		}
		if err != nil {
			return &domain.SettlementError{
				OrderCode: order.Code,
				PaymentID: payment.ID,
				Code:      domain.SettlementErrorCaptureFailed,
				Message:   err.Error(),
			}
		}
	}

	result, err := r.tx.Orders.SettlePayment(ctx, payment.ID)
	if err != nil {
		return fmt.Errorf("settle payment %s: %w", payment.ID, err)
	}
	if !result.Success {
		return &domain.SettlementError{
			OrderCode: order.Code,
			PaymentID: payment.ID,
			Code:      result.ErrorCode,
			Message:   result.Message,
		}
	}

	settled, err := r.tx.Orders.Get(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", order.Code, err)
	}
	r.logger.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"order_state": settled.State,
	}).Info("payment settled")

	if err := r.emit(ctx, settled, domain.EventPaymentSettled, map[string]any{
		"transaction_id": r.external.ID,
		"payment_id":     payment.ID,
		"amount_minor":   payment.AmountMinor,
	}); err != nil {
		return err
	}
	return r.emitStateChange(ctx, order.State, settled)
}

func (r *reconcileRun) emitStateChange(ctx context.Context, from domain.OrderState, order domain.Order) error {
	if from == order.State {
		return nil
	}
	return r.emit(ctx, order, domain.EventOrderStateChanged, map[string]any{
		"from":   from,
		"to":     order.State,
		"reason": fmt.Sprintf("%s -> %s", from, order.State),
	})
}

// emit пишет событие в outbox и timeline в рамках текущей транзакции.
func (r *reconcileRun) emit(ctx context.Context, order domain.Order, eventType string, payload map[string]any) error {
	occurred := r.c.now()
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	payload["order_code"] = order.Code
	payload["external_order_id"] = r.external.ID
	payload["ts"] = occurred.Format(time.RFC3339Nano)
	if lang, ok := domain.LanguageFrom(ctx); ok {
		payload["language"] = lang
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if _, err := r.tx.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}

	reason, _ := payload["reason"].(string)
	if err := r.tx.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:         order.ID,
		Type:            eventType,
		Reason:          reason,
		ExternalOrderID: r.external.ID,
		Occurred:        occurred,
	}); err != nil {
		return fmt.Errorf("append %s timeline event: %w", eventType, err)
	}
	r.events = append(r.events, eventType)
	return nil
}
