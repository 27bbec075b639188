package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsDatabaseAndAuthenticates(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	client, err := New(context.Background(), Options{Addr: mr.Addr(), Password: "s3cret", DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.Select(2)
	require.True(t, mr.Exists("k"))
}

func TestNewFailsWhenServerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Options{Addr: addr, PingTimeout: 200 * time.Millisecond})
	require.ErrorContains(t, err, "platform/cache: ping")

	_, err = New(context.Background(), Options{})
	require.Error(t, err)
}
