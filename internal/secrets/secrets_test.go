package secrets

import (
	"context"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

type fakeAccessor struct {
	payloads map[string][]byte
	requests []string
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.requests = append(f.requests, req.GetName())
	data, ok := f.payloads[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}, nil
}

func TestSecretManagerResolvesLatestVersion(t *testing.T) {
	acc := &fakeAccessor{payloads: map[string][]byte{
		"projects/weather/secrets/meteomatics_password/versions/latest": []byte("s3cret"),
	}}
	p := newSecretManagerProvider("weather", acc)

	v, err := p.Resolve(context.Background(), "meteomatics_password")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.Equal(t, []string{"projects/weather/secrets/meteomatics_password/versions/latest"}, acc.requests)
	require.NoError(t, p.Close())
}

func TestSecretManagerMissingSecret(t *testing.T) {
	p := newSecretManagerProvider("weather", &fakeAccessor{})

	_, err := p.Resolve(context.Background(), "metomatics_username")
	require.ErrorIs(t, err, forecast.ErrSecretNotFound)
	require.Contains(t, err.Error(), "NotFound")
}

func TestSecretManagerRejectsBadPayloads(t *testing.T) {
	acc := &fakeAccessor{payloads: map[string][]byte{
		"projects/weather/secrets/empty/versions/latest":  {},
		"projects/weather/secrets/binary/versions/latest": {0xff, 0xfe, 0xfd},
	}}
	p := newSecretManagerProvider("weather", acc)

	_, err := p.Resolve(context.Background(), "empty")
	require.ErrorIs(t, err, forecast.ErrSecretNotFound)

	_, err = p.Resolve(context.Background(), "binary")
	require.ErrorIs(t, err, forecast.ErrSecretNotFound)
}

func TestSecretManagerConfigurationErrors(t *testing.T) {
	acc := &fakeAccessor{}

	_, err := newSecretManagerProvider("", acc).Resolve(context.Background(), "x")
	require.ErrorIs(t, err, forecast.ErrConfiguration)

	_, err = newSecretManagerProvider("weather", acc).Resolve(context.Background(), "")
	require.ErrorIs(t, err, forecast.ErrConfiguration)

	require.Empty(t, acc.requests)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("METEOMATICS_PASSWORD", "from-env")
	t.Setenv("METOMATICS_USERNAME", "")

	p := NewEnvProvider()

	v, err := p.Resolve(context.Background(), "meteomatics_password")
	require.NoError(t, err)
	require.Equal(t, "from-env", v)

	_, err = p.Resolve(context.Background(), "metomatics_username")
	require.ErrorIs(t, err, forecast.ErrSecretNotFound)

	_, err = p.Resolve(context.Background(), "")
	require.ErrorIs(t, err, forecast.ErrConfiguration)
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "METEOMATICS_PASSWORD", EnvKey("meteomatics_password"))
	require.Equal(t, "MY_API_KEY", EnvKey("my-api.key"))
}
