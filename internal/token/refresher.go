package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/party-jam-system/internal/spotify"
	"github.com/party-jam-system/pkg/models"
)

// ErrSessionRenewal means the host's refresh credential was rejected;
// nothing short of a fresh login will bring the session back.
var ErrSessionRenewal = errors.New("host session could not be renewed")

// CredentialProvider is the token half of the external auth service.
type CredentialProvider interface {
	Refresh(ctx context.Context, refreshToken string) (*spotify.Credential, error)
}

// CredentialStore persists a host's credential pair. Implemented by
// pkg/database.
type CredentialStore interface {
	ReplaceHostTokens(hostID uuid.UUID, accessToken, refreshToken string) error
}

// Refresher runs host-credentialed calls with a single refresh-and-retry
// on failure. It is the only component allowed to rewrite a host's
// stored tokens after login.
type Refresher struct {
	provider CredentialProvider
	store    CredentialStore
}

func NewRefresher(provider CredentialProvider, store CredentialStore) *Refresher {
	return &Refresher{provider: provider, store: store}
}

// WithValidToken runs do with the host's current access token. If do
// fails, the refresh credential is exchanged for a new pair, the pair
// is persisted, and do runs once more with the new token. A refresh
// failure surfaces ErrSessionRenewal and leaves the stored credentials
// untouched; a second do failure is returned as-is, it is no longer a
// credential problem.
func (r *Refresher) WithValidToken(ctx context.Context, host *models.Host, do func(accessToken string) error) error {
	firstErr := do(host.AccessToken)
	if firstErr == nil {
		return nil
	}

	log.Warn("host call failed, refreshing access token", "host", host.SpotifyID, "err", firstErr)

	cred, err := r.provider.Refresh(ctx, host.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: refresh rejected: %v (original error: %v)", ErrSessionRenewal, err, firstErr)
	}

	if err := r.store.ReplaceHostTokens(host.ID, cred.AccessToken, cred.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	host.AccessToken = cred.AccessToken
	if cred.RefreshToken != "" {
		host.RefreshToken = cred.RefreshToken
	}

	return do(host.AccessToken)
}
