package strata_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
)

func TestCacheKey(t *testing.T) {
	k := strata.CacheKey{Transfer: "CategoryInfo", Dialect: "sqlite", SQL: "SELECT 1", Args: "[]", Limit: 10}
	assert.Equal(t, "strata:CategoryInfo:", k.Prefix())
	assert.Equal(t, "strata:CategoryInfo:sqlite:SELECT 1:[]:10:0", k.String())

	other := k
	other.Offset = 10
	assert.NotEqual(t, k.String(), other.String())
}

func TestCompiledCache(t *testing.T) {
	c, err := strata.NewCompiledCache[int](0)
	require.NoError(t, err)

	calls := 0
	build := func() (int, error) {
		calls++
		return 42, nil
	}
	v, err := c.GetOrAdd("a", build)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	v, err = c.GetOrAdd("a", build)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())

	_, err = c.GetOrAdd("b", func() (int, error) { return 0, errors.New("boom") })
	assert.EqualError(t, err, "boom")
	_, ok := c.Get("b")
	assert.False(t, ok)

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestCompiledCacheEviction(t *testing.T) {
	c, err := strata.NewCompiledCache[string](2)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrAdd(k, func() (string, error) { return k, nil })
		require.NoError(t, err)
	}
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", v)
}
