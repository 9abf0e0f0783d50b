package redproxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOpenCache_Hit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))

	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "report")).
		Return(mock.Result(mock.RedisString(`"cached"`)))

	e, err := coord.OpenCache(context.Background(), "report", CacheOptions{})
	require.NoError(t, err)

	assert.True(t, e.Loaded())
	assert.False(t, e.Dirty(), "a loaded value needs no write-back")
	v, ok := e.Value()
	assert.True(t, ok)
	assert.Equal(t, "cached", v)

	// No SET is expected: Close on a clean entry is a no-op.
	require.NoError(t, e.Close(context.Background()))
}

func TestOpenCache_MissThenFlush(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))

	gomock.InOrder(
		client.EXPECT().
			Do(gomock.Any(), mock.Match("GET", "report")).
			Return(mock.Result(mock.RedisNil())),
		client.EXPECT().
			Do(gomock.Any(), mock.Match("SET", "report", `"fresh"`, "EX", "30")).
			Return(mock.Result(mock.RedisString("OK"))),
	)

	e, err := coord.OpenCache(context.Background(), "report", CacheOptions{})
	require.NoError(t, err)

	assert.False(t, e.Loaded())
	_, ok := e.Value()
	assert.False(t, ok)

	e.SetValue("fresh")
	assert.True(t, e.Dirty())
	require.NoError(t, e.Close(context.Background()))

	// Close is idempotent: a second call does not flush again.
	require.NoError(t, e.Close(context.Background()))
}

func TestOpenCache_SetValueRedirties(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))

	gomock.InOrder(
		client.EXPECT().
			Do(gomock.Any(), mock.Match("GET", "report")).
			Return(mock.Result(mock.RedisString(`"cached"`))),
		client.EXPECT().
			Do(gomock.Any(), mock.Match("SET", "report", `"cached"`, "EX", "30")).
			Return(mock.Result(mock.RedisString("OK"))),
	)

	e, err := coord.OpenCache(context.Background(), "report", CacheOptions{})
	require.NoError(t, err)

	// Setting the same value still counts as an explicit write intent.
	v, _ := e.Value()
	e.SetValue(v)
	assert.True(t, e.Dirty())
	require.NoError(t, e.Close(context.Background()))
}

func TestOpenCache_StructuredMap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))

	t.Run("Hit", func(t *testing.T) {
		client.EXPECT().
			Do(gomock.Any(), mock.Match("HGETALL", "user:7")).
			Return(mock.Result(mock.RedisArray(
				mock.RedisString("name"), mock.RedisString(`"ada"`),
				mock.RedisString("visits"), mock.RedisString("3"),
			)))

		e, err := coord.OpenCache(context.Background(), "user:7", CacheOptions{Encoding: StructuredMap})
		require.NoError(t, err)

		v, ok := e.Value()
		require.True(t, ok)
		want := map[string]any{"name": "ada", "visits": float64(3)}
		if diff := cmp.Diff(want, v); diff != "" {
			t.Errorf("decoded record mismatch (-want +got):\n%s", diff)
		}
		require.NoError(t, e.Close(context.Background()))
	})

	t.Run("MissThenFlushBatch", func(t *testing.T) {
		client.EXPECT().
			Do(gomock.Any(), mock.Match("HGETALL", "user:8")).
			Return(mock.Result(mock.RedisArray()))
		client.EXPECT().
			DoMulti(gomock.Any(),
				mock.Match("HSET", "user:8", "name", `"bob"`, "visits", "1"),
				mock.Match("EXPIRE", "user:8", "30"),
			).
			Return([]rueidis.RedisResult{
				mock.Result(mock.RedisInt64(2)),
				mock.Result(mock.RedisInt64(1)),
			})

		e, err := coord.OpenCache(context.Background(), "user:8", CacheOptions{Encoding: StructuredMap})
		require.NoError(t, err)

		e.SetValue(map[string]any{"name": "bob", "visits": 1})
		require.NoError(t, e.Close(context.Background()))
	})

	t.Run("WrongValueType", func(t *testing.T) {
		client.EXPECT().
			Do(gomock.Any(), mock.Match("HGETALL", "user:9")).
			Return(mock.Result(mock.RedisArray()))

		e, err := coord.OpenCache(context.Background(), "user:9", CacheOptions{Encoding: StructuredMap})
		require.NoError(t, err)

		e.SetValue("not a map")
		var serr *SerializationError
		require.ErrorAs(t, e.Close(context.Background()), &serr)
		assert.Equal(t, "user:9", serr.Key)
	})
}

func TestOpenCache_Validation(t *testing.T) {
	coord := newTestCoordinator(t, newMemStore())

	_, err := coord.OpenCache(context.Background(), "", CacheOptions{})
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = coord.OpenCache(context.Background(), "k", CacheOptions{TTL: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestScopedCacheEntry_NoWriteBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))

	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "readonly")).
		Return(mock.Result(mock.RedisNil()))

	e, err := coord.OpenCache(context.Background(), "readonly", CacheOptions{NoWriteBack: true})
	require.NoError(t, err)

	assert.False(t, e.Dirty())
	require.NoError(t, e.Close(context.Background()))
}

func TestScopedCacheEntry_SuppressErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))
	coord.logger = &testLogger{t: t, allowErrors: true}

	gomock.InOrder(
		client.EXPECT().
			Do(gomock.Any(), mock.Match("GET", "report")).
			Return(mock.Result(mock.RedisNil())),
		client.EXPECT().
			Do(gomock.Any(), mock.Match("SET", "report", `"fresh"`, "EX", "30")).
			Return(mock.ErrorResult(errors.New("write refused"))),
	)

	e, err := coord.OpenCache(context.Background(), "report", CacheOptions{SuppressErrors: true})
	require.NoError(t, err)

	e.SetValue("fresh")
	assert.NoError(t, e.Close(context.Background()), "suppressed flush failure must not surface")
}

func TestScopedCacheEntry_FlushErrorSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := mock.NewClient(ctrl)
	coord := newTestCoordinator(t, newRedisStore(client))

	gomock.InOrder(
		client.EXPECT().
			Do(gomock.Any(), mock.Match("GET", "report")).
			Return(mock.Result(mock.RedisNil())),
		client.EXPECT().
			Do(gomock.Any(), mock.Match("SET", "report", `"fresh"`, "EX", "30")).
			Return(mock.ErrorResult(errors.New("write refused"))),
	)

	e, err := coord.OpenCache(context.Background(), "report", CacheOptions{})
	require.NoError(t, err)

	e.SetValue("fresh")
	var serr *StoreError
	require.ErrorAs(t, e.Close(context.Background()), &serr)
}

func TestWithCache_Flow(t *testing.T) {
	t.Run("MissComputesAndPersists", func(t *testing.T) {
		coord := newTestCoordinator(t, newMemStore())

		err := coord.WithCache(context.Background(), "answer", CacheOptions{}, func(e *ScopedCacheEntry) error {
			if _, ok := e.Value(); ok {
				t.Fatal("unexpected hit on first pass")
			}
			e.SetValue("42")
			return nil
		})
		require.NoError(t, err)

		// Second pass observes the persisted value and leaves it alone.
		var got any
		err = coord.WithCache(context.Background(), "answer", CacheOptions{}, func(e *ScopedCacheEntry) error {
			v, ok := e.Value()
			require.True(t, ok)
			got = v
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "42", got)
	})

	t.Run("BlockErrorWins", func(t *testing.T) {
		coord := newTestCoordinator(t, newMemStore())
		blockErr := errors.New("compute failed")

		err := coord.WithCache(context.Background(), "answer", CacheOptions{}, func(e *ScopedCacheEntry) error {
			return blockErr
		})
		assert.ErrorIs(t, err, blockErr)
	})

	t.Run("ValueSetBeforeErrorStillPersists", func(t *testing.T) {
		store := newMemStore()
		coord := newTestCoordinator(t, store)
		blockErr := errors.New("late failure")

		err := coord.WithCache(context.Background(), "partial", CacheOptions{}, func(e *ScopedCacheEntry) error {
			e.SetValue("progress")
			return blockErr
		})
		assert.ErrorIs(t, err, blockErr)

		raw, found, err := store.Get(context.Background(), "partial")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `"progress"`, raw)
	})
}

func TestEncoding_String(t *testing.T) {
	assert.Equal(t, "scalar", Scalar.String())
	assert.Equal(t, "structured-map", StructuredMap.String())
	assert.Equal(t, "encoding(9)", Encoding(9).String())
}
