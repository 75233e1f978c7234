package chainpass

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifiedVerdict(hash string) Verdict {
	return Verdict{
		Status:    StatusVerified,
		TxHash:    hash,
		Amount:    decimal.RequireFromString("0.01"),
		Timestamp: time.Now().UTC(),
	}
}

func TestMemoryCachePutGet(t *testing.T) {
	cache := NewMemoryVerdictCache(0)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, ok)

	want := verifiedVerdict(testHash)
	require.NoError(t, cache.Put(ctx, testHash, want))

	got, ok, err := cache.Get(ctx, testHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, got.Amount.Equal(want.Amount))
}

func TestMemoryCacheDropsNonAcceptedVerdicts(t *testing.T) {
	cache := NewMemoryVerdictCache(0)
	ctx := context.Background()

	for _, status := range []VerdictStatus{
		StatusNotFound, StatusPending, StatusWrongRecipient,
		StatusInsufficientAmount, StatusTransactionFailed,
	} {
		require.NoError(t, cache.Put(ctx, testHash, Verdict{Status: status, TxHash: testHash}))
	}

	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := NewMemoryVerdictCache(30 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testHash, verifiedVerdict(testHash)))

	_, ok, err := cache.Get(ctx, testHash)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok, err = cache.Get(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire after the TTL")
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCacheLastWriterWins(t *testing.T) {
	cache := NewMemoryVerdictCache(0)
	ctx := context.Background()

	first := verifiedVerdict(testHash)
	first.Amount = decimal.RequireFromString("0.01")
	second := verifiedVerdict(testHash)
	second.Amount = decimal.RequireFromString("0.02")

	require.NoError(t, cache.Put(ctx, testHash, first))
	require.NoError(t, cache.Put(ctx, testHash, second))

	got, ok, err := cache.Get(ctx, testHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(second.Amount))
	assert.Equal(t, 1, cache.Len())
}

func TestRedisCacheKeysAreNetworkScoped(t *testing.T) {
	base := NewRedisVerdictCache(nil, NetworkBase, 0)
	sepolia := NewRedisVerdictCache(nil, NetworkBaseSepolia, 0)

	assert.NotEqual(t, base.prefix, sepolia.prefix,
		"gates on different networks sharing one Redis must not cross-admit")
	assert.Equal(t, "chainpass:verdict:base:", base.prefix)
	assert.Equal(t, "chainpass:verdict:base-sepolia:", sepolia.prefix)
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	cache := NewMemoryVerdictCache(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		hash := fmt.Sprintf("0x%064d", i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cache.Put(ctx, hash, verifiedVerdict(hash))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if v, ok, _ := cache.Get(ctx, hash); ok {
					// Entries are visible fully or not at all.
					assert.Equal(t, StatusVerified, v.Status)
					assert.Equal(t, hash, v.TxHash)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, cache.Len())
}
