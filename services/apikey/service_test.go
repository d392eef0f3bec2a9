package apikey

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vayva-webhooks/pkg/security"
	"vayva-webhooks/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &APIKey{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestIssueReturnsRawKeyOnce(t *testing.T) {
	svc := newTestService(t)

	record, rawKey, err := svc.Issue(context.Background(), "t_1", "checkout service", []string{"orders:read", "webhooks:write"})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(rawKey, "vayva_"))
	require.Len(t, rawKey, len("vayva_")+64)

	// Only the hash is persisted; the raw key is not recoverable.
	require.Equal(t, security.HashToken(rawKey), record.SecretHash)
	require.NotContains(t, record.SecretHash, rawKey)
	require.Equal(t, rawKey[:len("vayva_")+8], record.KeyID)
	require.Equal(t, APIKeyStatusActive, record.Status)
}

func TestIssueValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Issue(ctx, "t_1", "", []string{"orders:read"})
	require.Error(t, err)

	_, _, err = svc.Issue(ctx, "t_1", "svc", nil)
	require.Error(t, err)

	_, _, err = svc.Issue(ctx, "t_1", "svc", []string{"orders:read", "not-a-scope"})
	require.Error(t, err)
}

func TestIssueKeysAreUnique(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, rawA, err := svc.Issue(ctx, "t_1", "a", []string{"orders:read"})
	require.NoError(t, err)
	_, rawB, err := svc.Issue(ctx, "t_1", "b", []string{"orders:read"})
	require.NoError(t, err)

	require.NotEqual(t, rawA, rawB)
}

func TestListIsTenantScoped(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Issue(ctx, "t_1", "mine", []string{"orders:read"})
	require.NoError(t, err)
	_, _, err = svc.Issue(ctx, "t_other", "theirs", []string{"orders:read"})
	require.NoError(t, err)

	records, err := svc.List(ctx, "t_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "mine", records[0].Name)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	record, _, err := svc.Issue(ctx, "t_1", "svc", []string{"orders:read"})
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, "t_1", record.ID)
	require.NoError(t, err)
	require.Equal(t, APIKeyStatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	firstRevokedAt := *revoked.RevokedAt

	// Revoking again keeps the original revocation time.
	again, err := svc.Revoke(ctx, "t_1", record.ID)
	require.NoError(t, err)
	require.Equal(t, APIKeyStatusRevoked, again.Status)
	require.Equal(t, firstRevokedAt, *again.RevokedAt)
}

func TestRevokeUnknownKey(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Revoke(context.Background(), "t_1", "key_missing")
	require.Error(t, err)
}

func TestRevokeWrongTenant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	record, _, err := svc.Issue(ctx, "t_1", "svc", []string{"orders:read"})
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, "t_other", record.ID)
	require.Error(t, err)
}
