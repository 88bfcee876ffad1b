package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"teledrive/pkg/models"
)

// Scope limits access to files this program creates
const Scope = drive.DriveFileScope

// TokenSourcer hands out Drive credentials
type TokenSourcer interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// CredentialProvider resolves Drive credentials without prompting: a
// service account key when configured, otherwise OAuth client secrets plus
// a stored token. Refreshed tokens are written back to the token file.
type CredentialProvider struct {
	credentialsFile    string
	tokenFile          string
	serviceAccountFile string
	log                *slog.Logger
}

// NewCredentialProvider creates a provider over the given files.
// serviceAccountFile may be empty.
func NewCredentialProvider(credentialsFile, tokenFile, serviceAccountFile string, log *slog.Logger) *CredentialProvider {
	return &CredentialProvider{
		credentialsFile:    credentialsFile,
		tokenFile:          tokenFile,
		serviceAccountFile: serviceAccountFile,
		log:                log,
	}
}

// TokenSource returns a refreshing token source or ErrAuthUnavailable
func (p *CredentialProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if p.serviceAccountFile != "" {
		data, err := os.ReadFile(p.serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read service account key: %w", models.ErrAuthUnavailable, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, Scope)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid service account key: %w", models.ErrAuthUnavailable, err)
		}
		return creds.TokenSource, nil
	}

	config, err := p.OAuthConfig()
	if err != nil {
		return nil, err
	}
	token, err := LoadToken(p.tokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: no stored token, run `teledrive auth drive`: %w", models.ErrAuthUnavailable, err)
	}

	return &persistingTokenSource{
		base: config.TokenSource(ctx, token),
		path: p.tokenFile,
		last: token.AccessToken,
		log:  p.log,
	}, nil
}

// OAuthConfig parses the OAuth client secrets file
func (p *CredentialProvider) OAuthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(p.credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read credentials file: %w", models.ErrAuthUnavailable, err)
	}
	config, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse credentials file: %w", models.ErrAuthUnavailable, err)
	}
	return config, nil
}

// AuthURL generates the consent URL for the interactive flow
func (p *CredentialProvider) AuthURL(state string) (string, error) {
	config, err := p.OAuthConfig()
	if err != nil {
		return "", err
	}
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token and stores it
func (p *CredentialProvider) Exchange(ctx context.Context, code string) error {
	config, err := p.OAuthConfig()
	if err != nil {
		return err
	}
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return SaveToken(p.tokenFile, token)
}

// Available reports whether non-interactive credentials are present
func (p *CredentialProvider) Available() bool {
	if p.serviceAccountFile != "" {
		_, err := os.Stat(p.serviceAccountFile)
		return err == nil
	}
	for _, f := range []string{p.credentialsFile, p.tokenFile} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// LoadToken reads a token saved by SaveToken
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no token: %w", path, fs.ErrNotExist)
	}
	return &token, nil
}

// SaveToken writes token with owner-only permissions
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// persistingTokenSource saves every newly refreshed token
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string
	log  *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: token refresh rejected: %w", models.ErrAuthExpired, err)
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.path, token); err != nil {
			s.log.Warn("Failed to persist refreshed Drive token", "error", err)
		}
	}
	return token, nil
}
