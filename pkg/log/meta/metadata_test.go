package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeginIsIdempotent(t *testing.T) {
	ctx := Begin(context.Background())
	assert.Equal(t, ctx, Begin(ctx))

	WithValue(ctx, "action", "pair")
	assert.Equal(t, "pair", Value(ctx, "action"))
}

func TestValueWithoutBegin(t *testing.T) {
	ctx := context.Background()
	WithValue(ctx, "action", "pair")
	assert.Nil(t, Value(ctx, "action"))
}
