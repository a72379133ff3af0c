package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/storage/memory"
)

const methodsYAML = `
payment_methods:
  - id: mollie-eur
    code: mollie
    name: Mollie
    api_key: test_abc
    enabled: true
    auto_capture: true
    redirect_url: https://shop.example.com/checkout/confirmation
    currencies: [EUR]
  - id: mollie-usd
    code: mollie-usd
    api_key: test_def
    enabled: false
`

func TestLoadPaymentMethods(t *testing.T) {
	path := filepath.Join(t.TempDir(), "methods.yaml")
	require.NoError(t, os.WriteFile(path, []byte(methodsYAML), 0o600))

	methods, err := memory.LoadPaymentMethods(path)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	assert.Equal(t, "mollie-eur", methods[0].ID)
	assert.Equal(t, "test_abc", methods[0].APIKey)
	assert.True(t, methods[0].AutoCapture)
	assert.Equal(t, []string{"EUR"}, methods[0].Currencies)
	assert.False(t, methods[1].Enabled)

	_, err = memory.ParsePaymentMethods([]byte("payment_methods:\n  - id: broken\n"))
	assert.ErrorIs(t, err, domain.ErrPaymentMethodRequired)

	_, err = memory.LoadPaymentMethods(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPaymentMethodRepository_Lookup(t *testing.T) {
	ctx := context.Background()
	methods, err := memory.ParsePaymentMethods([]byte(methodsYAML))
	require.NoError(t, err)

	repo := memory.NewPaymentMethodRepository(methods...)

	byID, err := repo.Get(ctx, "mollie-eur")
	require.NoError(t, err)
	assert.Equal(t, "mollie", byID.Code)

	byCode, err := repo.GetByCode(ctx, "mollie-usd")
	require.NoError(t, err)
	assert.Equal(t, "mollie-usd", byCode.ID)

	_, err = repo.Get(ctx, "unknown")
	assert.True(t, errors.Is(err, domain.ErrPaymentMethodNotFound))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Возвращаемые значения не делят слайсы с хранилищем.
	byID.Currencies[0] = "USD"
	again, err := repo.Get(ctx, "mollie-eur")
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR"}, again.Currencies)
}
