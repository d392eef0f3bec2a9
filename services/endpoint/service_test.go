package endpoint

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/security"
	"vayva-webhooks/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testSecretAES = "test-platform-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Endpoint{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{SecretAES: testSecretAES}
	return NewService(ServiceParams{DB: db, Node: node, Config: cfg})
}

func TestCreateEncryptsSecretAtRest(t *testing.T) {
	svc := newTestService(t)

	record, secret, err := svc.Create(context.Background(), "t_1", "https://shop.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)

	require.Len(t, secret, 64, "signing secret is 32 random bytes hex encoded")
	require.NotEqual(t, secret, record.SecretEnc)

	// Stored value decrypts back to the returned secret.
	plain, err := security.Decrypt(record.SecretEnc, security.KeyFromSecret(testSecretAES))
	require.NoError(t, err)
	require.Equal(t, secret, plain)

	require.Equal(t, EndpointStatusActive, record.Status)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		url    string
		events []string
	}{
		{"relative url", "/hooks", []string{"order.created"}},
		{"missing scheme", "shop.example.com/hooks", []string{"order.created"}},
		{"unsupported scheme", "ftp://shop.example.com/hooks", []string{"order.created"}},
		{"no events", "https://shop.example.com/hooks", nil},
		{"blank event", "https://shop.example.com/hooks", []string{" "}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Create(ctx, "t_1", tc.url, tc.events)
			require.Error(t, err)
		})
	}
}

func TestRotateSecretInvalidatesOldOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	record, oldSecret, err := svc.Create(ctx, "t_1", "https://shop.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)

	rotated, newSecret, err := svc.RotateSecret(ctx, "t_1", record.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldSecret, newSecret)

	plain, err := security.Decrypt(rotated.SecretEnc, security.KeyFromSecret(testSecretAES))
	require.NoError(t, err)
	require.Equal(t, newSecret, plain)
}

func TestUpdateSubscriptions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	record, _, err := svc.Create(ctx, "t_1", "https://shop.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)

	updated, err := svc.UpdateSubscriptions(ctx, "t_1", record.ID, []string{"order.created", "payment.captured"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"order.created", "payment.captured"}, []string(updated.SubscribedEvents))

	_, err = svc.UpdateSubscriptions(ctx, "t_1", record.ID, nil)
	require.Error(t, err)
}

func TestSetStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	record, _, err := svc.Create(ctx, "t_1", "https://shop.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, "t_1", record.ID, EndpointStatusPaused)
	require.NoError(t, err)
	require.Equal(t, EndpointStatusPaused, updated.Status)

	_, err = svc.SetStatus(ctx, "t_1", record.ID, EndpointStatus("bogus"))
	require.Error(t, err)
}

func TestMatchReturnsActiveSubscribedEndpoints(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	subscribed, _, err := svc.Create(ctx, "t_1", "https://a.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)

	_, _, err = svc.Create(ctx, "t_1", "https://b.example.com/hooks", []string{"payment.captured"})
	require.NoError(t, err)

	paused, _, err := svc.Create(ctx, "t_1", "https://c.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, "t_1", paused.ID, EndpointStatusPaused)
	require.NoError(t, err)

	_, _, err = svc.Create(ctx, "t_other", "https://d.example.com/hooks", []string{"order.created"})
	require.NoError(t, err)

	ids, err := svc.Match(ctx, "t_1", "order.created")
	require.NoError(t, err)
	require.Equal(t, []string{subscribed.ID}, ids)
}

func TestMatchNoSubscribers(t *testing.T) {
	svc := newTestService(t)

	ids, err := svc.Match(context.Background(), "t_1", "order.created")
	require.NoError(t, err)
	require.Empty(t, ids)
}
