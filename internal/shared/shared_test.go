package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 1000, 450)
	assert.Equal(t, 200, p.PerPage)
	assert.Equal(t, 400, p.Offset())
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	_, ok = ActorFromContext(ContextWithActor(context.Background(), 0))
	assert.False(t, ok)

	id, ok := ActorFromContext(ContextWithActor(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestCoreScopesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, scope := range CoreScopes() {
		assert.False(t, seen[scope], scope)
		seen[scope] = true
	}
}
