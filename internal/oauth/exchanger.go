package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/forgeflow/forgeflow/internal/provider"
)

var (
	ErrProviderNotConfigured = errors.New("oauth provider not configured")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrNoAccessToken         = errors.New("token response missing access token")
)

// ProviderConfig holds one provider's OAuth application settings.
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type Config struct {
	StateSecret string                         `mapstructure:"state_secret"`
	Providers   map[provider.ID]ProviderConfig `mapstructure:"providers"`
}

// Exchange is the result handed back to the boundary for storage. The
// exchanger itself never persists tokens.
type Exchange struct {
	Provider     provider.ID
	SubjectID    string
	AccessToken  string
	RefreshToken string
	Metadata     map[string]string
}

// Exchanger implements the authorization-code flow: StartFlow builds the
// provider authorize URL with a signed state parameter, CompleteFlow
// verifies the state and swaps the code for tokens.
type Exchanger struct {
	config Config
	now    func() time.Time
	enrich func(ctx context.Context, exchange *Exchange)
}

func NewExchanger(config Config) *Exchanger {
	e := &Exchanger{config: config, now: time.Now}
	e.enrich = e.enrichSourceControl
	return e
}

func (e *Exchanger) StartFlow(providerID provider.ID, subjectID string) (string, error) {
	cfg, ok := e.config.Providers[providerID]
	if !ok || cfg.ClientID == "" {
		return "", fmt.Errorf("%s: %w", providerID, ErrProviderNotConfigured)
	}

	state, err := signState([]byte(e.config.StateSecret), providerID, subjectID, e.now())
	if err != nil {
		return "", err
	}

	return e.oauthConfig(cfg).AuthCodeURL(state), nil
}

func (e *Exchanger) CompleteFlow(ctx context.Context, code, rawState string) (*Exchange, error) {
	state, err := verifyState([]byte(e.config.StateSecret), rawState, e.now())
	if err != nil {
		return nil, err
	}

	cfg, ok := e.config.Providers[state.Provider]
	if !ok || cfg.ClientID == "" {
		return nil, fmt.Errorf("%s: %w", state.Provider, ErrProviderNotConfigured)
	}

	token, err := e.oauthConfig(cfg).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: provider returned %d", ErrTokenExchangeFailed, retrieveErr.Response.StatusCode)
		}
		// x/oauth2 reports a 2xx body without access_token as a plain
		// error; keep it distinguishable for the callback redirect.
		if strings.Contains(err.Error(), "missing access_token") {
			return nil, fmt.Errorf("%w: %w", ErrNoAccessToken, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	exchange := &Exchange{
		Provider:     state.Provider,
		SubjectID:    state.SubjectID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Metadata:     map[string]string{},
	}
	e.enrich(ctx, exchange)
	return exchange, nil
}

func (e *Exchanger) oauthConfig(cfg ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// enrichSourceControl attaches provider metadata (the user's primary
// organization) on a best-effort basis. Failures are logged, never fatal.
func (e *Exchanger) enrichSourceControl(ctx context.Context, exchange *Exchange) {
	if exchange.Provider != provider.SourceControl {
		return
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: exchange.AccessToken})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	orgs, _, err := client.Organizations.List(ctx, "", &github.ListOptions{PerPage: 1})
	if err != nil {
		slog.Debug("Organization lookup failed during oauth enrichment", "error", err)
		return
	}
	if len(orgs) > 0 {
		exchange.Metadata["organization"] = orgs[0].GetLogin()
	}
}

// ErrorCode maps exchanger failures to the stable codes carried on the
// callback redirect.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrStateExpired):
		return "state_expired"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNoAccessToken):
		return "no_token"
	case errors.Is(err, ErrTokenExchangeFailed):
		return "token_exchange_failed"
	case errors.Is(err, ErrProviderNotConfigured):
		return "config_missing"
	default:
		return "oauth_error"
	}
}
