package mollie

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type amountDTO struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func newAmountDTO(m domain.Money) amountDTO {
	return amountDTO{Value: m.String(), Currency: m.Currency}
}

func (a *amountDTO) toDomain() (*domain.Money, error) {
	if a == nil {
		return nil, nil
	}
	money, err := domain.ParseMoney(a.Value, a.Currency)
	if err != nil {
		return nil, err
	}
	return &money, nil
}

type linkDTO struct {
	Href string `json:"href"`
}

type orderResponse struct {
	ID             string         `json:"id"`
	ProfileID      string         `json:"profileId"`
	Method         string         `json:"method"`
	Mode           string         `json:"mode"`
	Status         string         `json:"status"`
	OrderNumber    string         `json:"orderNumber"`
	Amount         amountDTO      `json:"amount"`
	AmountCaptured *amountDTO     `json:"amountCaptured,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	AuthorizedAt   *time.Time     `json:"authorizedAt,omitempty"`
	PaidAt         *time.Time     `json:"paidAt,omitempty"`
	Links          struct {
		Checkout *linkDTO `json:"checkout,omitempty"`
	} `json:"_links"`
}

func (r orderResponse) toDomain() (domain.ExternalOrder, error) {
	amount, err := domain.ParseMoney(r.Amount.Value, r.Amount.Currency)
	if err != nil {
		return domain.ExternalOrder{}, fmt.Errorf("mollie: order %s amount: %w", r.ID, err)
	}
	captured, err := r.AmountCaptured.toDomain()
	if err != nil {
		return domain.ExternalOrder{}, fmt.Errorf("mollie: order %s captured amount: %w", r.ID, err)
	}

	order := domain.ExternalOrder{
		ID:             r.ID,
		Status:         domain.ExternalOrderStatus(r.Status),
		Amount:         amount,
		AmountCaptured: captured,
		OrderNumber:    r.OrderNumber,
		Metadata:       stringMetadata(r.Metadata),
		Mode:           r.Mode,
		Method:         r.Method,
		ProfileID:      r.ProfileID,
		AuthorizedAt:   utcPtr(r.AuthorizedAt),
		PaidAt:         utcPtr(r.PaidAt),
	}
	if r.Links.Checkout != nil {
		order.CheckoutURL = r.Links.Checkout.Href
	}
	return order, nil
}

// stringMetadata оставляет только строковые значения: остальные мы в метаданные не пишем.
func stringMetadata(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	at := t.UTC()
	return &at
}

type addressDTO struct {
	OrganizationName string `json:"organizationName,omitempty"`
	GivenName        string `json:"givenName"`
	FamilyName       string `json:"familyName"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	StreetAndNumber  string `json:"streetAndNumber"`
	StreetAdditional string `json:"streetAdditional,omitempty"`
	PostalCode       string `json:"postalCode,omitempty"`
	City             string `json:"city"`
	Region           string `json:"region,omitempty"`
	Country          string `json:"country"`
}

func newAddressDTO(a domain.ProviderAddress) addressDTO {
	return addressDTO{
		OrganizationName: a.OrganizationName,
		GivenName:        a.GivenName,
		FamilyName:       a.FamilyName,
		Email:            a.Email,
		Phone:            a.Phone,
		StreetAndNumber:  a.StreetAndNumber,
		StreetAdditional: a.StreetAdditional,
		PostalCode:       a.PostalCode,
		City:             a.City,
		Region:           a.Region,
		Country:          a.Country,
	}
}

type orderLineDTO struct {
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku,omitempty"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   amountDTO `json:"unitPrice"`
	TotalAmount amountDTO `json:"totalAmount"`
	VATRate     string    `json:"vatRate"`
	VATAmount   amountDTO `json:"vatAmount"`
}

type createOrderRequest struct {
	Amount          amountDTO         `json:"amount"`
	OrderNumber     string            `json:"orderNumber"`
	Lines           []orderLineDTO    `json:"lines"`
	BillingAddress  addressDTO        `json:"billingAddress"`
	ShippingAddress *addressDTO       `json:"shippingAddress,omitempty"`
	RedirectURL     string            `json:"redirectUrl"`
	WebhookURL      string            `json:"webhookUrl,omitempty"`
	Locale          string            `json:"locale"`
	Method          string            `json:"method,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func newCreateOrderRequest(p domain.CreateOrderParams) createOrderRequest {
	req := createOrderRequest{
		Amount:         newAmountDTO(p.Amount),
		OrderNumber:    p.OrderNumber,
		Lines:          make([]orderLineDTO, 0, len(p.Lines)),
		BillingAddress: newAddressDTO(p.BillingAddress),
		RedirectURL:    p.RedirectURL,
		WebhookURL:     p.WebhookURL,
		Locale:         p.Locale,
		Method:         p.Method,
		Metadata:       p.Metadata,
	}
	if p.ShippingAddress != (domain.ProviderAddress{}) {
		shipping := newAddressDTO(p.ShippingAddress)
		req.ShippingAddress = &shipping
	}
	for _, line := range p.Lines {
		req.Lines = append(req.Lines, orderLineDTO{
			Type:        string(line.Type),
			Name:        line.Name,
			SKU:         line.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   newAmountDTO(line.UnitPrice),
			TotalAmount: newAmountDTO(line.TotalAmount),
			VATRate:     line.VATRate,
			VATAmount:   newAmountDTO(line.VATAmount),
		})
	}
	return req
}

type methodDTO struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	MinimumAmount *amountDTO `json:"minimumAmount,omitempty"`
	MaximumAmount *amountDTO `json:"maximumAmount,omitempty"`
	Image         struct {
		Size1x string `json:"size1x"`
		Size2x string `json:"size2x"`
		SVG    string `json:"svg"`
	} `json:"image"`
}

func (m methodDTO) toDomain() (domain.ProviderMethod, error) {
	minAmount, err := m.MinimumAmount.toDomain()
	if err != nil {
		return domain.ProviderMethod{}, fmt.Errorf("mollie: method %s minimum amount: %w", m.ID, err)
	}
	maxAmount, err := m.MaximumAmount.toDomain()
	if err != nil {
		return domain.ProviderMethod{}, fmt.Errorf("mollie: method %s maximum amount: %w", m.ID, err)
	}
	image := m.Image.SVG
	if image == "" {
		image = m.Image.Size2x
	}
	return domain.ProviderMethod{
		ID:          m.ID,
		Description: m.Description,
		MinAmount:   minAmount,
		MaxAmount:   maxAmount,
		ImageURL:    image,
	}, nil
}

type methodsResponse struct {
	Count    int `json:"count"`
	Embedded struct {
		Methods []methodDTO `json:"methods"`
	} `json:"_embedded"`
}
