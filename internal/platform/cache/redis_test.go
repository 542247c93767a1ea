package cache

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestOptionsAcceptsURLAndAddr(t *testing.T) {
	opts, err := Options("localhost:6379")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)

	opts, err = Options("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB)

	_, err = Options("redis://cache:6379/notadb")
	require.Error(t, err)
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), addr)
	require.Error(t, err)
}

func TestAsynqOpt(t *testing.T) {
	opt, err := AsynqOpt("redis://cache:6379/3")
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opt.Addr)
	require.Equal(t, 3, opt.DB)
}
