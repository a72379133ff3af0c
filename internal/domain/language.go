package domain

import "context"

type languageKey struct{}

// WithLanguage возвращает контекст, в котором побочные эффекты (письма, события)
// используют язык исходного заказа, а не язык входящего запроса.
func WithLanguage(ctx context.Context, languageCode string) context.Context {
	if languageCode == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey{}, languageCode)
}

// LanguageFrom возвращает язык из контекста, если он задан.
func LanguageFrom(ctx context.Context) (string, bool) {
	lang, ok := ctx.Value(languageKey{}).(string)
	return lang, ok && lang != ""
}
