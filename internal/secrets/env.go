package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// EnvProvider resolves secrets from environment variables, for local runs.
// The secret "meteomatics_password" is read from METEOMATICS_PASSWORD.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Resolve(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty secret name", forecast.ErrConfiguration)
	}
	key := EnvKey(name)
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s (env %s)", forecast.ErrSecretNotFound, name, key)
	}
	return v, nil
}

// EnvKey maps a secret name to its environment variable.
func EnvKey(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, name)
}
