package s3store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"teledrive/pkg/config"
)

// ClientOptions tune the S3 client
type ClientOptions struct {
	MaxRetries int
	Timeout    time.Duration
}

// NewClient builds an S3 client for AWS or an S3-compatible endpoint.
// Credentials resolve through config.LoadCredentials.
func NewClient(ctx context.Context, creds *config.S3Credentials, opts ClientOptions, log *slog.Logger) (*s3.Client, error) {
	resolved := creds.Resolved()

	awsCfg, err := config.LoadCredentials(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 credentials: %w", err)
	}
	if opts.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = opts.MaxRetries
	}

	// S3-compatible endpoints answer with redirects the SDK must not follow
	if resolved.EndpointURL != "" {
		awsCfg.HTTPClient = &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	clientOptions := []func(*s3.Options){}
	if resolved.EndpointURL != "" {
		clientOptions = append(clientOptions, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(resolved.EndpointURL)
			o.UsePathStyle = resolved.ForcePathStyle
			o.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateDisabled
			o.EndpointOptions.UseDualStackEndpoint = aws.DualStackEndpointStateDisabled
		})
		log.Info("S3 client configured",
			"provider", resolved.Provider,
			"endpoint", resolved.EndpointURL,
			"path_style", resolved.ForcePathStyle,
			"region", awsCfg.Region)
	} else {
		log.Info("S3 client configured", "provider", resolved.Provider, "region", awsCfg.Region)
	}

	return s3.NewFromConfig(awsCfg, clientOptions...), nil
}
