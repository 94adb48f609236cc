// Package vault reads service secrets (JWT signing secret, platform service
// token) from HashiCorp Vault KV v2. When Vault is disabled the values come
// from config/env instead, so development setups need no Vault at all.
package vault

import (
	"context"
	"fmt"

	"fx-backoffice/config"

	"github.com/hashicorp/vault/api"
)

// Secrets holds the sensitive values the service needs at startup
type Secrets struct {
	JWTSecret     string `json:"jwt_secret"`
	PlatformToken string `json:"platform_token"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose Load falls back to config values.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// Load reads the service secrets. Values present in Vault win; anything
// missing falls back to the supplied defaults from config/env.
func (c *Client) Load(ctx context.Context, fallback Secrets) (Secrets, error) {
	if !c.config.Enabled {
		return fallback, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return fallback, nil
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fallback, nil
	}

	out := fallback
	if v, ok := data["jwt_secret"].(string); ok && v != "" {
		out.JWTSecret = v
	}
	if v, ok := data["platform_token"].(string); ok && v != "" {
		out.PlatformToken = v
	}

	return out, nil
}
