package secretmanager

import (
	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

// Module provides the Vault client that pkg/config uses to hydrate
// DB/Redis/AES secrets. Register it only when Vault is configured
// (VAULT_ADDR et al); without it config falls back to file/env values.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}
