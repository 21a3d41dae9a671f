package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_AlwaysReturnsStorage(t *testing.T) {
	if s := NewStore(RedisConfig{}); s == nil {
		t.Fatalf("expected non-nil memory store when redis addr empty")
	}
	if s := NewStore(RedisConfig{Addr: "127.0.0.1:1"}); s == nil {
		t.Fatalf("expected non-nil fallback store when redis is unreachable")
	}
}

func TestNewStore_UsesRedis(t *testing.T) {
	mrs, err := miniredis.Run()
	require.NoError(t, err)
	defer mrs.Close()

	s := NewStore(RedisConfig{Addr: mrs.Addr()})
	require.NoError(t, s.Set("k", []byte("v"), time.Minute))

	assert.True(t, mrs.Exists("k"))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
