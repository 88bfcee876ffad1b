package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// S3Provider names an S3-compatible service with known endpoint defaults
type S3Provider string

const (
	ProviderAWS          S3Provider = "aws"
	ProviderMinIO        S3Provider = "minio"
	ProviderDigitalOcean S3Provider = "digitalocean"
	ProviderWasabi       S3Provider = "wasabi"
	ProviderBackblaze    S3Provider = "backblaze"
	ProviderCloudflare   S3Provider = "cloudflare"
	ProviderCustom       S3Provider = "custom"
)

// S3Credentials configure the alternative S3 sink
type S3Credentials struct {
	Provider        S3Provider `env:"S3_PROVIDER,default=aws"`
	AccessKeyID     string     `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string     `env:"S3_SECRET_ACCESS_KEY"`
	SessionToken    string     `env:"S3_SESSION_TOKEN"`
	Region          string     `env:"S3_REGION"`
	EndpointURL     string     `env:"S3_ENDPOINT_URL"`
	ForcePathStyle  bool       `env:"S3_FORCE_PATH_STYLE,default=false"`
}

// LoadCredentials resolves an aws.Config in order of priority:
// 1. Explicit credentials
// 2. AWS_* environment variables
// 3. AWS SDK default chain (credentials file, IAM role)
func LoadCredentials(ctx context.Context, creds *S3Credentials) (aws.Config, error) {
	if creds != nil && creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		return loadFromExplicitCredentials(ctx, creds.withProviderDefaults())
	}

	if envCreds := loadFromEnvironment(); envCreds != nil {
		return loadFromExplicitCredentials(ctx, envCreds)
	}

	return loadFromDefaultChain(ctx, creds)
}

func loadFromExplicitCredentials(ctx context.Context, creds *S3Credentials) (aws.Config, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}

	staticProvider := credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID,
		creds.SecretAccessKey,
		creds.SessionToken,
	)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(staticProvider),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	return cfg, nil
}

func loadFromEnvironment() *S3Credentials {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if accessKey == "" || secretKey == "" {
		return nil
	}

	return &S3Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Region:          os.Getenv("AWS_REGION"),
	}
}

func loadFromDefaultChain(ctx context.Context, creds *S3Credentials) (aws.Config, error) {
	region := "us-east-1"
	if creds != nil && creds.Region != "" {
		region = creds.Region
	}
	if envRegion := os.Getenv("AWS_REGION"); envRegion != "" {
		region = envRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load default credentials: %w", err)
	}

	return cfg, nil
}

// withProviderDefaults fills region, endpoint and addressing style for
// well-known providers. Explicit values always win.
func (c *S3Credentials) withProviderDefaults() *S3Credentials {
	out := *c
	switch c.Provider {
	case ProviderMinIO:
		out.ForcePathStyle = true
		if out.Region == "" {
			out.Region = "us-east-1"
		}
		if out.EndpointURL == "" {
			out.EndpointURL = "http://localhost:9000"
		}
	case ProviderDigitalOcean:
		if out.Region == "" {
			out.Region = "nyc3"
		}
		if out.EndpointURL == "" {
			out.EndpointURL = fmt.Sprintf("https://%s.digitaloceanspaces.com", out.Region)
		}
	case ProviderWasabi:
		if out.Region == "" {
			out.Region = "us-east-1"
		}
		if out.EndpointURL == "" {
			out.EndpointURL = fmt.Sprintf("https://s3.%s.wasabisys.com", out.Region)
		}
	case ProviderBackblaze:
		if out.Region == "" {
			out.Region = "us-west-004"
		}
		if out.EndpointURL == "" {
			out.EndpointURL = fmt.Sprintf("https://s3.%s.backblazeb2.com", out.Region)
		}
	case ProviderCloudflare:
		// R2 endpoints embed the account id, so EndpointURL must be set by the user
		if out.Region == "" {
			out.Region = "auto"
		}
	case ProviderCustom:
		out.ForcePathStyle = true
	}
	return &out
}

// Resolved returns the credentials with provider defaults applied
func (c *S3Credentials) Resolved() *S3Credentials {
	return c.withProviderDefaults()
}
