package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	calls   int
	tenants map[ID]Info
}

func (d *countingDirectory) ResolveTenant(ctx context.Context, id ID) (Info, error) {
	d.calls++
	info, ok := d.tenants[id]
	if !ok {
		return Info{}, ErrUnknown
	}
	return info, nil
}

func newCached(t *testing.T, next Directory) (*CachedDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedDirectory(next, client, time.Minute, nil), mr
}

func TestCachedDirectoryServesFromCache(t *testing.T) {
	backing := &countingDirectory{tenants: map[ID]Info{1: {ID: 1, Name: "Acme", Status: "active"}}}
	dir, mr := newCached(t, backing)
	ctx := context.Background()

	info, err := dir.ResolveTenant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Acme", info.Name)

	info, err = dir.ResolveTenant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "active", info.Status)
	assert.Equal(t, 1, backing.calls)
	assert.True(t, mr.Exists("identity:tenant:1"))

	mr.FastForward(2 * time.Minute)
	_, err = dir.ResolveTenant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedDirectoryDoesNotCacheUnknown(t *testing.T) {
	backing := &countingDirectory{tenants: map[ID]Info{}}
	dir, mr := newCached(t, backing)

	_, err := dir.ResolveTenant(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUnknown)
	assert.False(t, mr.Exists("identity:tenant:9"))
}

func TestCachedDirectoryInvalidate(t *testing.T) {
	backing := &countingDirectory{tenants: map[ID]Info{2: {ID: 2, Name: "Globex", Status: "active"}}}
	dir, _ := newCached(t, backing)
	ctx := context.Background()

	_, err := dir.ResolveTenant(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, dir.Invalidate(ctx, 2))
	backing.tenants[2] = Info{ID: 2, Name: "Globex", Status: "suspended"}

	info, err := dir.ResolveTenant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "suspended", info.Status)
}

func TestCachedDirectoryFallsBackWhenRedisDown(t *testing.T) {
	backing := &countingDirectory{tenants: map[ID]Info{3: {ID: 3, Name: "Initech"}}}
	dir, mr := newCached(t, backing)
	mr.Close()

	info, err := dir.ResolveTenant(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Initech", info.Name)
}
