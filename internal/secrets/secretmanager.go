package secrets

import (
	"context"
	"fmt"
	"unicode/utf8"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/status"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// versionAccessor is the subset of the Secret Manager client we call.
type versionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretManagerProvider resolves secrets from Google Secret Manager,
// always reading the latest version.
type SecretManagerProvider struct {
	project string
	client  versionAccessor
	close   func() error
}

// NewSecretManagerProvider dials Secret Manager with application default credentials.
// An empty project is accepted here and reported by Resolve.
func NewSecretManagerProvider(ctx context.Context, project string) (*SecretManagerProvider, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &SecretManagerProvider{
		project: project,
		client:  client,
		close:   client.Close,
	}, nil
}

func newSecretManagerProvider(project string, client versionAccessor) *SecretManagerProvider {
	return &SecretManagerProvider{project: project, client: client}
}

// Resolve returns the latest version of the named secret as a UTF-8 string.
func (p *SecretManagerProvider) Resolve(ctx context.Context, name string) (string, error) {
	if p.project == "" {
		return "", fmt.Errorf("%w: GOOGLE_CLOUD_PROJECT is not set", forecast.ErrConfiguration)
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty secret name", forecast.ErrConfiguration)
	}

	path := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.project, name)
	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: path})
	if err != nil {
		return "", fmt.Errorf("%w: %s (%s): %v", forecast.ErrSecretNotFound, name, status.Code(err), err)
	}

	data := resp.GetPayload().GetData()
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s has an empty payload", forecast.ErrSecretNotFound, name)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", forecast.ErrSecretNotFound, name)
	}
	return string(data), nil
}

// Close releases the underlying client connection.
func (p *SecretManagerProvider) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
