package demo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLoader(demos map[string][]byte, loads *atomic.Int32) Loader {
	return func(ctx context.Context, name string) ([]byte, error) {
		loads.Add(1)
		data, ok := demos[name]
		if !ok {
			return nil, fmt.Errorf("no demo %s", name)
		}
		return data, nil
	}
}

func TestParseBatch(t *testing.T) {
	demos := map[string][]byte{
		"a.dem":   healthDemo(false),
		"b.dem":   healthDemo(true),
		"bad.dem": []byte("not a demo at all"),
	}
	var loads atomic.Int32

	p := newTestParser(t, WithWantedProps("health"))
	results, err := p.ParseBatch(context.Background(),
		[]string{"a.dem", "b.dem", "bad.dem", "missing.dem"}, mapLoader(demos, &loads), 2)
	require.NoError(t, err)
	assert.Equal(t, int32(4), loads.Load())
	assert.Equal(t, 4, results.Size())

	for _, name := range []string{"a.dem", "b.dem"} {
		r, ok := results.Load(name)
		require.True(t, ok, name)
		require.NoError(t, r.Err)
		assert.Len(t, r.Output.Column("health"), 2)
	}

	r, ok := results.Load("bad.dem")
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrBadMagic)

	r, ok = results.Load("missing.dem")
	require.True(t, ok)
	assert.ErrorContains(t, r.Err, "load missing.dem")

	// each demo gets its own session
	a, _ := results.Load("a.dem")
	b, _ := results.Load("b.dem")
	assert.NotEqual(t, a.Output.SessionID, b.Output.SessionID)
}

func TestParseBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var loads atomic.Int32
	p := newTestParser(t)
	_, err := p.ParseBatch(ctx, []string{"a.dem", "b.dem"},
		mapLoader(map[string][]byte{}, &loads), 1)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), loads.Load())
}
