package domain

import "time"

// TimelineEvent — запись в истории заказа: что изменилось и по какому уведомлению провайдера.
type TimelineEvent struct {
	OrderID string
	Type    string
	Reason  string
	// ExternalOrderID: заказ провайдера, уведомление о котором вызвало событие. Пусто для локальных изменений.
	ExternalOrderID string
	Occurred        time.Time
}
