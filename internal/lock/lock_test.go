package lock

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisURL string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	redisURL = fmt.Sprintf("redis://%s:%s/0", host, port.Port())

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if redisURL == "" {
		t.Skip("skipping integration test in short mode")
	}
	client, err := Connect(context.Background(), redisURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestLocker_Exclusive(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, "autoplan:test:exclusive", 5*time.Second)

	lease, err := locker.Acquire(ctx, "run-a")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "run-b")
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "run-a:")

	require.NoError(t, lease.Release(ctx))

	again, err := locker.Acquire(ctx, "run-b")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLease_ReleaseDoesNotDeleteForeignLock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	key := "autoplan:test:foreign"
	lease, err := NewLocker(client, key, 5*time.Second).Acquire(ctx, "run-a")
	require.NoError(t, err)

	require.NoError(t, client.Set(ctx, key, "someone-else", time.Minute).Err())

	err = lease.Release(ctx)
	require.ErrorIs(t, err, ErrNotHeld)
	assert.Equal(t, "someone-else", client.Get(ctx, key).Val())
}

func TestLease_KeepAliveExtendsTTL(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	key := "autoplan:test:keepalive"
	lease, err := NewLocker(client, key, time.Second).Acquire(ctx, "run-a")
	require.NoError(t, err)

	time.Sleep(2500 * time.Millisecond)

	assert.Equal(t, lease.Token(), client.Get(ctx, key).Val())
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, int64(0), client.Exists(ctx, key).Val())
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	require.Error(t, err)
}
