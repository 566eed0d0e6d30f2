package credential

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/model"
)

// Key returns the keyring key of a secret, e.g. "work-imap" or
// "work-smtp-oauth2".
func Key(account string, kind backend.Kind, suffix ...string) string {
	key := account + "-" + string(kind)
	for _, s := range suffix {
		key += "-" + s
	}
	return key
}

// Password returns the configured password, falling back to the keyring.
func (s *Store) Password(account string, kind backend.Kind, auth model.AuthConfig) (string, error) {
	if auth.Password != "" {
		return auth.Password, nil
	}
	return s.Get(Key(account, kind))
}

// TokenSource returns a source that refreshes access tokens from the
// account's refresh token. The refresh token comes from the configuration
// or, when empty, from the keyring.
func (s *Store) TokenSource(
	ctx context.Context,
	account string,
	kind backend.Kind,
	cfg *model.OAuth2Config,
) (oauth2.TokenSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("oauth2 settings missing for %s", Key(account, kind))
	}

	refresh := cfg.RefreshToken
	if refresh == "" {
		var err error
		refresh, err = s.Get(Key(account, kind, "oauth2"))
		if err != nil {
			return nil, err
		}
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
		Scopes: cfg.Scopes,
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}), nil
}

// SASLClient returns the SASL mechanism matching the auth settings:
// PLAIN for passwords, OAUTHBEARER for oauth2.
func (s *Store) SASLClient(
	ctx context.Context,
	account string,
	kind backend.Kind,
	login string,
	auth model.AuthConfig,
) (sasl.Client, error) {
	if auth.Type == "oauth2" {
		src, err := s.TokenSource(ctx, account, kind, auth.OAuth2)
		if err != nil {
			return nil, err
		}
		tok, err := src.Token()
		if err != nil {
			return nil, &backend.AuthError{Kind: kind, Message: fmt.Sprintf("refreshing oauth2 token: %v", err)}
		}
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: login,
			Token:    tok.AccessToken,
		}), nil
	}

	password, err := s.Password(account, kind, auth)
	if err != nil {
		return nil, err
	}
	return sasl.NewPlainClient("", login, password), nil
}
