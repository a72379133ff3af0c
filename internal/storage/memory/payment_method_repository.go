package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type paymentMethodRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.PaymentMethod
}

// NewPaymentMethodRepository создаёт in-memory хранилище способов оплаты.
func NewPaymentMethodRepository(methods ...domain.PaymentMethod) domain.PaymentMethodRepository {
	repo := &paymentMethodRepositoryInMemory{items: make(map[string]domain.PaymentMethod)}
	for _, m := range methods {
		_ = repo.Upsert(context.Background(), m)
	}
	return repo
}

// paymentMethodsFile: формат файла с начальными способами оплаты.
type paymentMethodsFile struct {
	PaymentMethods []domain.PaymentMethod `yaml:"payment_methods"`
}

// LoadPaymentMethods читает способы оплаты из YAML-файла.
//
//	payment_methods:
//	  - id: mollie-eur
//	    code: mollie
//	    api_key: test_xxx
//	    enabled: true
//	    auto_capture: false
func LoadPaymentMethods(path string) ([]domain.PaymentMethod, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payment methods file: %w", err)
	}
	return ParsePaymentMethods(raw)
}

// ParsePaymentMethods разбирает YAML со способами оплаты.
func ParsePaymentMethods(raw []byte) ([]domain.PaymentMethod, error) {
	var file paymentMethodsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode payment methods: %w", err)
	}
	for i, m := range file.PaymentMethods {
		if strings.TrimSpace(m.Code) == "" {
			return nil, fmt.Errorf("payment method #%d: %w", i, domain.ErrPaymentMethodRequired)
		}
	}
	return file.PaymentMethods, nil
}

func (r *paymentMethodRepositoryInMemory) Get(ctx context.Context, id string) (domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.items[id]
	if !ok {
		return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
	}
	return clonePaymentMethod(m), nil
}

func (r *paymentMethodRepositoryInMemory) GetByCode(ctx context.Context, code string) (domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.items {
		if m.Code == code {
			return clonePaymentMethod(m), nil
		}
	}
	return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
}

func (r *paymentMethodRepositoryInMemory) List(ctx context.Context) ([]domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.PaymentMethod, 0, len(r.items))
	for _, m := range r.items {
		result = append(result, clonePaymentMethod(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (r *paymentMethodRepositoryInMemory) Upsert(ctx context.Context, method domain.PaymentMethod) error {
	if strings.TrimSpace(method.Code) == "" {
		return domain.ErrPaymentMethodRequired
	}
	if method.ID == "" {
		method.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[method.ID] = clonePaymentMethod(method)
	return nil
}

func clonePaymentMethod(src domain.PaymentMethod) domain.PaymentMethod {
	dst := src
	dst.Currencies = append([]string(nil), src.Currencies...)
	return dst
}

var _ domain.PaymentMethodRepository = (*paymentMethodRepositoryInMemory)(nil)
