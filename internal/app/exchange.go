package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/polybacker/polybacker/internal/config"
	"github.com/polybacker/polybacker/internal/crypto"
	"github.com/polybacker/polybacker/internal/domain"
	"github.com/polybacker/polybacker/internal/engine"
	"github.com/polybacker/polybacker/internal/platform/polymarket"
)

// exchangeProvider builds CLOB clients on demand. Per-user stored credentials
// win; the server wallet's derived credentials are the fallback. All orders
// are signed with the server wallet key, so no signer means no live trading.
type exchangeProvider struct {
	cfg    *config.Config
	signer *crypto.Signer
	cipher *crypto.CredsCipher
	prefs  domain.PrefStore
	logger *slog.Logger

	mu         sync.Mutex
	serverAuth *crypto.HMACAuth
	readOnly   engine.Exchange
}

func newExchangeProvider(cfg *config.Config, signer *crypto.Signer, cipher *crypto.CredsCipher, prefs domain.PrefStore, logger *slog.Logger) *exchangeProvider {
	return &exchangeProvider{
		cfg:    cfg,
		signer: signer,
		cipher: cipher,
		prefs:  prefs,
		logger: logger.With("component", "exchange"),
	}
}

// ForUser returns a trading client for the user. The empty user addresses
// the server wallet directly.
func (p *exchangeProvider) ForUser(ctx context.Context, user string) (engine.Exchange, error) {
	if p.signer == nil {
		return nil, fmt.Errorf("app: no wallet configured: %w", domain.ErrNoCredentials)
	}

	if user != "" && p.cipher != nil {
		auth, err := p.userAuth(ctx, user)
		if err != nil {
			return nil, err
		}
		if auth != nil {
			return p.buildClient(auth)
		}
	}

	auth, err := p.serverCreds(ctx)
	if err != nil {
		return nil, err
	}
	return p.buildClient(auth)
}

// ReadOnly returns a shared unauthenticated client for price lookups.
func (p *exchangeProvider) ReadOnly() engine.Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readOnly == nil {
		client, err := polymarket.NewClobClient(p.cfg.Polymarket.ClobHost, p.cfg.Polymarket.ProxyURL, nil, nil, 0, "")
		if err != nil {
			// Only a malformed proxy URL can fail here, and that is caught
			// at startup by the authenticated path.
			p.logger.Error("read-only clob client", "error", err)
			return nil
		}
		p.readOnly = client
	}
	return p.readOnly
}

// userAuth decrypts the user's stored venue credentials. A nil auth with nil
// error means the user has none stored.
func (p *exchangeProvider) userAuth(ctx context.Context, user string) (*crypto.HMACAuth, error) {
	creds, err := p.prefs.GetCreds(ctx, user)
	if err != nil || !creds.HasKey() {
		return nil, nil
	}

	secret, err := p.cipher.Decrypt(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("app: decrypt credentials for %s: %w", user, err)
	}
	passphrase := ""
	if creds.Passphrase != "" {
		if passphrase, err = p.cipher.Decrypt(creds.Passphrase); err != nil {
			return nil, fmt.Errorf("app: decrypt credentials for %s: %w", user, err)
		}
	}
	return &crypto.HMACAuth{Key: creds.APIKey, Secret: secret, Passphrase: passphrase}, nil
}

// serverCreds derives the server wallet's L2 credentials once and caches
// them for the process lifetime.
func (p *exchangeProvider) serverCreds(ctx context.Context) (*crypto.HMACAuth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.serverAuth != nil {
		return p.serverAuth, nil
	}

	client, err := p.buildClient(nil)
	if err != nil {
		return nil, err
	}
	auth, err := client.DeriveAPIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: derive server api key: %w", err)
	}
	p.serverAuth = &auth
	p.logger.Info("server api credentials derived", "address", strings.ToLower(p.signer.Address().Hex()))
	return p.serverAuth, nil
}

func (p *exchangeProvider) buildClient(auth *crypto.HMACAuth) (*polymarket.ClobClient, error) {
	return polymarket.NewClobClient(
		p.cfg.Polymarket.ClobHost,
		p.cfg.Polymarket.ProxyURL,
		p.signer,
		auth,
		p.cfg.Wallet.SignatureType,
		p.cfg.Wallet.Funder,
	)
}
