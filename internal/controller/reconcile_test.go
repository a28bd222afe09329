package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

func TestReconcileClean(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	for _, n := range []string{"a", "b"} {
		_, err := svc.Add(ctx, n)
		require.NoError(t, err)
	}

	rep, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Clean())
	assert.Equal(t, "wg0", rep.Interface)
	assert.Equal(t, 2, rep.Registered)
	assert.Equal(t, 2, rep.Live)
}

func TestReconcileReportsDrift(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)

	a, err := svc.Add(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "bob")
	require.NoError(t, err)

	// alice пропала с интерфейса (например, перезапуск без сохранения)
	delete(vpn.peers, a.PublicKey)
	// на интерфейсе есть пир, о котором реестр не знает
	vpn.extra = []int{40}
	// две записи с одним октетом и одна битая
	require.NoError(t, store.Create(ctx, "carol", models.PeerRecord{
		PrivateKey: "p=", IPv4Segment: 3, PublicKey: "k=", PresharedKey: "s=",
	}))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "dave.json"), []byte("nope"), 0o600))

	rep, err := NewReconciler(store, vpn, nil).Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Clean())
	assert.Equal(t, []Entry{{Name: "alice", Octet: 2}}, rep.Orphaned)
	assert.Equal(t, []int{40}, rep.Unknown)
	assert.Equal(t, map[int][]string{3: {"bob", "carol"}}, rep.Conflicts)
	assert.Equal(t, []string{"dave"}, rep.Corrupt)
	assert.Equal(t, 3, rep.Registered)
}

func TestReconcileInterfaceDown(t *testing.T) {
	svc, _, vpn := newService(t)
	vpn.listErr = toolFailure()
	_, err := svc.Reconcile(context.Background())
	assert.ErrorIs(t, err, wireguard.ErrExternalTool)
}
