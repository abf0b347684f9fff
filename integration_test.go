package qdash_test

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcvalkey "github.com/testcontainers/testcontainers-go/modules/valkey"

	"github.com/pitabwire/qdash/discovery"
	"github.com/pitabwire/qdash/queues"
	"github.com/pitabwire/qdash/reset"
	"github.com/pitabwire/qdash/store"
	storeredis "github.com/pitabwire/qdash/store/redis"
	storevalkey "github.com/pitabwire/qdash/store/valkey"
)

const valkeyImage = "docker.io/valkey/valkey:latest"

// startValkey provisions a throwaway key-value server for the test and
// returns its host and port.
func startValkey(t *testing.T) (string, int) {
	t.Helper()

	ctx := context.Background()
	container, err := tcvalkey.Run(ctx, valkeyImage)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("could not start valkey container: %v", err)
	}

	conn, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	parsed, err := url.Parse(conn)
	require.NoError(t, err)

	host, portRaw, err := net.SplitHostPort(parsed.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portRaw)
	require.NoError(t, err)

	return host, port
}

// seedQueues writes the key shapes a queueing system leaves behind: job
// lists and state sets under the namespace prefix, plus a key outside it
// that discovery must ignore.
func seedQueues(t *testing.T, addr string) {
	t.Helper()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	require.NoError(t, client.RPush(ctx, "bull:emails:wait", "job-1", "job-2").Err())
	require.NoError(t, client.RPush(ctx, "bull:emails:active", "job-3").Err())
	require.NoError(t, client.ZAdd(ctx, "bull:billing:failed", redis.Z{Score: 1, Member: "job-9"}).Err())
	require.NoError(t, client.Set(ctx, "bull:billing", "meta", 0).Err())
	require.NoError(t, client.Set(ctx, "other:ignored", "x", 0).Err())
}

func remainingKeys(t *testing.T, addr, pattern string) []string {
	t.Helper()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	keys, err := client.Keys(ctx, pattern).Result()
	require.NoError(t, err)
	return keys
}

// runLifecycle drives a full discovery pass and fleet-wide reset through one
// client family against a live server.
func runLifecycle(t *testing.T, st store.Store, engine queues.EngineVersion, profile queues.ConnectionProfile) {
	t.Helper()

	ctx := context.Background()
	registry := queues.NewRegistry()

	pass := &discovery.Pass{
		Store:    st,
		Prefix:   "bull",
		Engine:   engine,
		Profile:  profile,
		Registry: registry,
	}

	result := pass.Run(ctx)
	require.True(t, result.Ready())
	require.Equal(t, []string{"billing", "emails"}, result.Names)
	require.Empty(t, result.Skipped)

	adapters := registry.Current()
	require.Len(t, adapters, 2)

	byName := map[string]queues.Adapter{}
	for _, adapter := range adapters {
		require.Equal(t, engine, adapter.Engine())
		byName[adapter.Name()] = adapter
	}

	emailCounts, err := byName["emails"].Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), emailCounts.Waiting)
	require.Equal(t, int64(1), emailCounts.Active)

	billingCounts, err := byName["billing"].Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), billingCounts.Failed)

	// Unforced obliterate must refuse the queue with a job in flight.
	err = byName["emails"].Obliterate(ctx, false)
	require.ErrorIs(t, err, queues.ErrQueueActive)

	executor := &reset.Executor{Registry: registry}
	resetResult := executor.ResetAll(ctx, true)
	require.True(t, resetResult.Attempted)
	require.Len(t, resetResult.Outcomes, 2)
	for _, outcome := range resetResult.Outcomes {
		require.Equal(t, reset.StatusSuccess, outcome.Status, outcome.Name)
	}

	for _, adapter := range adapters {
		require.NoError(t, adapter.Close())
	}
}

func TestLegacyFamilyLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	host, port := startValkey(t)
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	seedQueues(t, addr)

	st, err := storeredis.New(storeredis.Options{Addr: addr})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	runLifecycle(t, st, queues.EngineLegacy, queues.ConnectionProfile{
		Host: host, Port: port, Prefix: "bull",
	})

	require.Empty(t, remainingKeys(t, addr, "bull:*"))
	require.Len(t, remainingKeys(t, addr, "other:*"), 1)
}

func TestCurrentFamilyLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	host, port := startValkey(t)
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	seedQueues(t, addr)

	st, err := storevalkey.New(storevalkey.Options{Addr: addr})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	runLifecycle(t, st, queues.EngineCurrent, queues.ConnectionProfile{
		Host: host, Port: port, Prefix: "bull",
	})

	require.Empty(t, remainingKeys(t, addr, "bull:*"))
	require.Len(t, remainingKeys(t, addr, "other:*"), 1)
}
