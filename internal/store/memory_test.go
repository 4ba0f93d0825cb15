package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/record"
)

func testAddr(tag byte) record.Address {
	var a record.Address
	for i := range a {
		a[i] = tag
	}
	return a
}

func TestMemoryCreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	addr := testAddr(0x01)
	require.NoError(t, s.Apply(ctx, Create(addr, []byte(`{"record":"project"}`))))

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"record":"project"}`), got)
	assert.Equal(t, 1, s.Size())

	// Mutating the returned slice must not leak into the store.
	got[0] = 'X'
	again, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"record":"project"}`), again)
}

func TestMemoryGetMissing(t *testing.T) {
	t.Parallel()

	s := NewMemory()

	_, err := s.Get(context.Background(), testAddr(0x02))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), testAddr(0x02).String())
}

func TestMemoryPreconditions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	occupied := testAddr(0x10)
	free := testAddr(0x11)

	newStore := func(t *testing.T) *Memory {
		t.Helper()
		s := NewMemory()
		require.NoError(t, s.Apply(ctx, Create(occupied, []byte(`{}`))))
		return s
	}

	tests := []struct {
		name    string
		op      Op
		wantErr error
	}{
		{"create on occupied address", Create(occupied, []byte(`{"v":2}`)), ErrAlreadyExists},
		{"update on free address", Update(free, []byte(`{"v":2}`)), ErrNotFound},
		{"delete on free address", Delete(free), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newStore(t)
			err := s.Apply(ctx, tt.op)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, s.Size())
		})
	}
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	addr := testAddr(0x20)

	require.NoError(t, s.Apply(ctx, Create(addr, []byte(`{"v":1}`))))
	require.NoError(t, s.Apply(ctx, Update(addr, []byte(`{"v":2}`))))

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), got)

	require.NoError(t, s.Apply(ctx, Delete(addr)))

	_, err = s.Get(ctx, addr)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Size())
}

func TestMemoryBatchIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	existing := testAddr(0x30)
	fresh := testAddr(0x31)
	require.NoError(t, s.Apply(ctx, Create(existing, []byte(`{"v":1}`))))

	// The failing create aborts the batch, so neither the new record nor
	// the update lands.
	err := s.Apply(ctx,
		Create(fresh, []byte(`{"v":1}`)),
		Update(existing, []byte(`{"v":2}`)),
		Create(existing, []byte(`{"v":3}`)),
	)
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.Get(ctx, fresh)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), got)
}

func TestMemoryBatchMixedKinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	a := testAddr(0x40)
	b := testAddr(0x41)
	c := testAddr(0x42)

	require.NoError(t, s.Apply(ctx, Create(a, []byte(`{"a":1}`)), Create(b, []byte(`{"b":1}`))))
	require.NoError(t, s.Apply(ctx,
		Update(a, []byte(`{"a":2}`)),
		Delete(b),
		Create(c, []byte(`{"c":1}`)),
	))

	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":2}`), got)

	_, err = s.Get(ctx, b)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Size())
}

func TestMemoryRejectsMalformedBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	addr := testAddr(0x50)

	tests := []struct {
		name string
		ops  []Op
	}{
		{"duplicate addresses", []Op{Create(addr, []byte(`{}`)), Update(addr, []byte(`{}`))}},
		{"delete carrying data", []Op{{Kind: OpDelete, Addr: addr, Data: []byte(`{}`)}}},
		{"create without data", []Op{{Kind: OpCreate, Addr: addr}}},
		{"zero address", []Op{Create(record.Address{}, []byte(`{}`))}},
		{"unknown kind", []Op{{Kind: OpKind(9), Addr: addr, Data: []byte(`{}`)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewMemory()
			err := s.Apply(ctx, tt.ops...)
			require.ErrorIs(t, err, ErrInvalidOp)
			assert.Equal(t, 0, s.Size())
		})
	}
}

func TestMemoryEmptyApply(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	require.NoError(t, s.Apply(context.Background()))
}

func TestMemoryContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemory()
	addr := testAddr(0x60)

	_, err := s.Get(ctx, addr)
	require.ErrorIs(t, err, context.Canceled)

	err = s.Apply(ctx, Create(addr, []byte(`{}`)))
	require.ErrorIs(t, err, context.Canceled)

	require.ErrorIs(t, s.Ping(ctx), context.Canceled)
}

func TestMemoryPingAndClose(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestMemoryConcurrentCreates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	addr := testAddr(0x70)

	const workers = 20

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Apply(ctx, Create(addr, []byte(`{"winner":true}`)))
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyExists)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, s.Size())
}
