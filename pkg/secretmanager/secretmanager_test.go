package secretmanager

import (
	"testing"

	vault "github.com/hashicorp/vault-client-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestProvideVault(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

	client, err := ProvideVault()
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestModuleProvidesVaultClient(t *testing.T) {
	// The config loader declares an optional *vault.Client dependency;
	// this module is what makes that dependency satisfiable.
	err := fx.ValidateApp(
		Module,
		fx.Invoke(func(c *vault.Client) {}),
	)
	require.NoError(t, err)
}
