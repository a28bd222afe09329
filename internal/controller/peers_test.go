package controller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/metrics"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/render/wgconf"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/repo"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

// fakeVPN — интерфейс в памяти.
type fakeVPN struct {
	mu      sync.Mutex
	peers   map[string]int // public key -> octet
	extra   []int          // живые адреса без ключей из реестра
	keyN    int
	addErr  error
	rmErr   error
	listErr error
	adds    int
	removes int
}

func newFakeVPN() *fakeVPN { return &fakeVPN{peers: map[string]int{}} }

func (f *fakeVPN) Interface() string { return "wg0" }

func (f *fakeVPN) AddPeer(_ context.Context, pub, _ string, addr netip.Prefix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	if f.addErr != nil {
		return f.addErr
	}
	f.peers[pub] = int(addr.Addr().As4()[3])
	return nil
}

func (f *fakeVPN) RemovePeer(_ context.Context, pub string, _ netip.Prefix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes++
	if f.rmErr != nil {
		return f.rmErr
	}
	delete(f.peers, pub)
	return nil
}

func (f *fakeVPN) ListAssignedAddresses(context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := append([]int(nil), f.extra...)
	for _, o := range f.peers {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeVPN) GenerateKeypair(context.Context) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyN++
	return fmt.Sprintf("priv-%d=", f.keyN), fmt.Sprintf("pub-%d=", f.keyN), nil
}

func (f *fakeVPN) GeneratePresharedKey(context.Context) (string, error) {
	return "psk=", nil
}

func (f *fakeVPN) InterfacePublicKey(context.Context) (string, error) {
	return "SERVER=", nil
}

// failingDelete — реестр, у которого не получается удалить запись.
type failingDelete struct{ repo.PeerStore }

func (failingDelete) Delete(context.Context, string) error { return errors.New("read-only filesystem") }

var subnet = ipam.MustParseSubnet("192.168.42.0/24")

func newService(t *testing.T) (*PeerService, *repo.FilePeerStore, *fakeVPN) {
	t.Helper()
	store, err := repo.NewFilePeerStore(filepath.Join(t.TempDir(), "peers"))
	require.NoError(t, err)
	vpn := newFakeVPN()
	svc := NewPeerService(store, vpn, Options{
		Subnet:             subnet,
		Endpoint:           "vpn.example.org:51820",
		DNS:                []string{"192.168.42.1"},
		SpecificAllowedIPs: []netip.Prefix{netip.MustParsePrefix("192.168.42.0/24")},
		Keepalive:          25,
	})
	return svc, store, vpn
}

func toolFailure() error {
	return &wireguard.ToolError{Op: "wg set", Err: errors.New("exit status 1"), Output: "Operation not permitted"}
}

func TestAddAllocatesSequentially(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)

	a, err := svc.Add(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, a.IPv4Segment)
	assert.Equal(t, "alice", a.Name)

	b, err := svc.Add(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, b.IPv4Segment)

	stored, err := store.Read(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, b, stored)
	assert.Equal(t, 3, vpn.peers[b.PublicKey])
}

func TestAddDoesNotReuseFreedAddress(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	for _, n := range []string{"a", "b", "c"} {
		_, err := svc.Add(ctx, n)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Remove(ctx, "b"))

	d, err := svc.Add(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 5, d.IPv4Segment)
}

func TestAddUsesLiveStateNotRegistry(t *testing.T) {
	ctx := context.Background()
	svc, _, vpn := newService(t)
	vpn.extra = []int{2, 3, 5}

	rec, err := svc.Add(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 6, rec.IPv4Segment)
}

func TestAddTwice(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)

	first, err := svc.Add(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.Add(ctx, "alice")
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)
	assert.False(t, Retryable(err))
	assert.Equal(t, 1, vpn.adds)
	assert.Equal(t, 1, vpn.keyN, "no keys generated for a duplicate")

	got, err := store.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestAddInvalidName(t *testing.T) {
	svc, _, vpn := newService(t)
	_, err := svc.Add(context.Background(), "Alice Smith")
	assert.ErrorIs(t, err, repo.ErrInvalidName)
	assert.Zero(t, vpn.adds)
}

func TestAddExhausted(t *testing.T) {
	svc, store, vpn := newService(t)
	vpn.extra = []int{254}

	_, err := svc.Add(context.Background(), "late")
	assert.ErrorIs(t, err, ipam.ErrAddressSpaceExhausted)
	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestAddRollsBackWhenInterfaceFails(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)
	vpn.addErr = toolFailure()

	_, err := svc.Add(ctx, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, wireguard.ErrExternalTool)
	assert.True(t, Retryable(err))

	_, err = store.Read(ctx, "alice")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// после восстановления интерфейса имя снова свободно
	vpn.addErr = nil
	_, err = svc.Add(ctx, "alice")
	assert.NoError(t, err)
}

func TestAddListFailure(t *testing.T) {
	svc, store, vpn := newService(t)
	vpn.listErr = toolFailure()

	_, err := svc.Add(context.Background(), "alice")
	assert.ErrorIs(t, err, wireguard.ErrExternalTool)
	names, _ := store.List(context.Background())
	assert.Empty(t, names)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)

	rec, err := svc.Add(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "bob"))

	_, err = store.Read(ctx, "bob")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, live := vpn.peers[rec.PublicKey]
	assert.False(t, live)
}

func TestRemoveMissing(t *testing.T) {
	svc, _, vpn := newService(t)
	err := svc.Remove(context.Background(), "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Zero(t, vpn.removes)
}

func TestRemoveInterfaceFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)
	_, err := svc.Add(ctx, "bob")
	require.NoError(t, err)

	vpn.rmErr = toolFailure()
	err = svc.Remove(ctx, "bob")
	assert.ErrorIs(t, err, wireguard.ErrExternalTool)

	_, err = store.Read(ctx, "bob")
	assert.NoError(t, err)
}

func TestRemoveRestoresPeerWhenRegistryFails(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)
	rec, err := svc.Add(ctx, "bob")
	require.NoError(t, err)

	svc.store = failingDelete{store}
	err = svc.Remove(ctx, "bob")
	require.Error(t, err)

	assert.Equal(t, rec.IPv4Segment, vpn.peers[rec.PublicKey], "peer must be back on the interface")
	_, err = store.Read(ctx, "bob")
	assert.NoError(t, err)
}

func TestConcurrentAddsGetDistinctAddresses(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	const n = 30
	var wg sync.WaitGroup
	octets := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := svc.Add(ctx, fmt.Sprintf("peer-%d", i))
			octets[i], errs[i] = rec.IPv4Segment, err
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := range octets {
		require.NoError(t, errs[i])
		assert.False(t, seen[octets[i]], "octet %d handed out twice", octets[i])
		seen[octets[i]] = true
	}
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	for _, n := range []string{"zed", "amy"} {
		_, err := svc.Add(ctx, n)
		require.NoError(t, err)
	}

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "zed"}, names)

	rec, err := svc.Get(ctx, "zed")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.IPv4Segment)

	_, err = svc.Get(ctx, "nobody")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestClientConfig(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	rec, err := svc.Add(ctx, "alice")
	require.NoError(t, err)

	conf, err := svc.ClientConfig(ctx, "alice", wgconf.AllTraffic)
	require.NoError(t, err)
	s := string(conf)
	assert.Contains(t, s, "PrivateKey = "+rec.PrivateKey)
	assert.Contains(t, s, "Address = 192.168.42.2/32")
	assert.Contains(t, s, "PublicKey = SERVER=")
	assert.Contains(t, s, "PresharedKey = psk=")
	assert.Contains(t, s, "AllowedIPs = 0.0.0.0/0, ::/0")

	conf, err = svc.ClientConfig(ctx, "alice", wgconf.SpecificTraffic)
	require.NoError(t, err)
	assert.Contains(t, string(conf), "AllowedIPs = 192.168.42.0/24")

	_, err = svc.ClientConfig(ctx, "ghost", wgconf.AllTraffic)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestServiceMetrics(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	m := metrics.New()
	svc.opts.Metrics = m

	_, err := svc.Add(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "alice")
	require.Error(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(m.Registry, "wg_webui_peer_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n) // add/ok, add/already_exists, list/ok
}

func TestErrorKind(t *testing.T) {
	cases := map[error]string{
		nil: "ok",
		fmt.Errorf("x: %w", repo.ErrInvalidName):           "invalid_name",
		fmt.Errorf("x: %w", repo.ErrAlreadyExists):         "already_exists",
		fmt.Errorf("x: %w", repo.ErrNotFound):              "not_found",
		fmt.Errorf("x: %w", repo.ErrCorruptRecord):         "corrupt_record",
		fmt.Errorf("x: %w", ipam.ErrAddressSpaceExhausted): "address_space_exhausted",
		toolFailure():           "external_tool_failure",
		context.Canceled:        "canceled",
		errors.New("disk full"): "internal",
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorKind(err), "%v", err)
	}
}

func TestAddRejectsNameWithCorruptRecord(t *testing.T) {
	ctx := context.Background()
	svc, store, vpn := newService(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{"), 0o600))

	_, err := svc.Add(ctx, "broken")
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)
	assert.Zero(t, vpn.adds)
}

var _ repo.PeerStore = failingDelete{}
var _ wireguard.Controller = (*fakeVPN)(nil)
