package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VersionAccessor is the subset of the Secret Manager client used here.
type VersionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretManagerSource reads the latest version of secrets from Google Secret Manager.
type SecretManagerSource struct {
	client    VersionAccessor
	projectID string
	logger    zerolog.Logger
}

// NewSecretManagerSource creates a source backed by a Secret Manager client.
func NewSecretManagerSource(client VersionAccessor, projectID string, logger zerolog.Logger) *SecretManagerSource {
	return &SecretManagerSource{client: client, projectID: projectID, logger: logger}
}

// NewSecretManagerClient opens a Secret Manager client with application default credentials.
func NewSecretManagerClient(ctx context.Context) (*secretmanager.Client, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	return client, nil
}

// VersionName returns the resource name of the latest version of a secret.
func VersionName(projectID, name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name)
}

// Secret returns the payload of the latest version of the named secret.
func (s *SecretManagerSource) Secret(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: VersionName(s.projectID, name),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("accessing secret %s: %w", name, err)
	}

	value := strings.TrimSpace(string(resp.GetPayload().GetData()))
	if value == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}

	s.logger.Debug().Str("secret", name).Msg("secret loaded")
	return value, nil
}
