package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type cachedUser struct {
	ID   int
	Name string
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNewRedisService(t *testing.T) {
	db, _ := redismock.NewClientMock()

	_, err := NewRedisService(nil, time.Minute)
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "client", configErr.Field)

	_, err = NewRedisService(db, 0)
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "TTL", configErr.Field)

	service, err := NewRedisService(db, time.Minute, WithScanCount(50), WithRedisLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(50), service.scanCount)
	assert.NotNil(t, service.logger)
}

func TestRedisService_GetOrFetch(t *testing.T) {
	ctx := context.Background()
	user := cachedUser{ID: 42, Name: "ann"}

	t.Run("miss stores the fetched value", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		mock.ExpectGet("users::findUser_42").RedisNil()
		mock.ExpectSet("users::findUser_42", mustEncode(t, user), time.Minute).SetVal("OK")

		called := false
		result, err := service.GetOrFetch(ctx, "users::findUser_42", func(ctx context.Context) (cachedUser, error) {
			called = true
			return user, nil
		})

		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, user, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hit decodes into the fetch result type", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		mock.ExpectGet("users::findUser_42").SetVal(string(mustEncode(t, user)))

		result, err := service.GetOrFetch(ctx, "users::findUser_42", func(ctx context.Context) (cachedUser, error) {
			t.Error("fetch should not run on a hit")
			return cachedUser{}, nil
		})

		require.NoError(t, err)
		assert.Equal(t, user, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("context ttl overrides the default", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		mock.ExpectGet("k").RedisNil()
		mock.ExpectSet("k", mustEncode(t, "v"), 30*time.Second).SetVal("OK")

		_, err = service.GetOrFetch(WithTTL(ctx, 30*time.Second), "k", func(ctx context.Context) (string, error) {
			return "v", nil
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("read and write failures fail open", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		mock.ExpectGet("k").SetErr(errors.New("connection refused"))
		mock.ExpectSet("k", mustEncode(t, 7), time.Minute).SetErr(errors.New("connection refused"))

		result, err := service.GetOrFetch(ctx, "k", func(ctx context.Context) (int, error) {
			return 7, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 7, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("undecodable entries are refetched", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		mock.ExpectGet("k").SetVal("\xc1")
		mock.ExpectSet("k", mustEncode(t, user), time.Minute).SetVal("OK")

		result, err := service.GetOrFetch(ctx, "k", func(ctx context.Context) (cachedUser, error) {
			return user, nil
		})

		require.NoError(t, err)
		assert.Equal(t, user, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fetch errors are returned and not stored", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		boom := errors.New("boom")
		mock.ExpectGet("k").RedisNil()

		_, err = service.GetOrFetch(ctx, "k", func(ctx context.Context) (string, error) {
			return "", boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid fetch function", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		service, err := NewRedisService(db, time.Minute)
		require.NoError(t, err)

		_, err = service.GetOrFetch(ctx, "k", func() string { return "" })

		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisService_Put(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	service, err := NewRedisService(db, time.Minute)
	require.NoError(t, err)

	mock.ExpectSet("a", mustEncode(t, "x"), time.Minute).SetVal("OK")
	mock.ExpectSet("b", mustEncode(t, "y"), 5*time.Second).SetVal("OK")
	mock.ExpectSet("c", mustEncode(t, "z"), time.Hour).SetErr(errors.New("readonly"))

	require.NoError(t, service.Put(ctx, "a", "x", 0))
	require.NoError(t, service.Put(ctx, "b", "y", 5*time.Second))
	assert.Error(t, service.Put(ctx, "c", "z", time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_Delete(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	service, err := NewRedisService(db, time.Minute)
	require.NoError(t, err)

	mock.ExpectDel("k").SetVal(1)
	mock.ExpectDel("broken").SetErr(errors.New("down"))

	require.NoError(t, service.Delete(ctx, "k"))
	err = service.Delete(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	service, err := NewRedisService(db, time.Minute, WithScanCount(10))
	require.NoError(t, err)

	mock.ExpectScan(0, "users::*", 10).SetVal([]string{"users::a", "users::b"}, 5)
	mock.ExpectDel("users::a", "users::b").SetVal(2)
	mock.ExpectScan(5, "users::*", 10).SetVal([]string{}, 0)

	require.NoError(t, service.DeleteByPrefix(ctx, "users::"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_DeleteByPrefix_ScanError(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	service, err := NewRedisService(db, time.Minute)
	require.NoError(t, err)

	mock.ExpectScan(0, "users::*", defaultScanCount).SetErr(errors.New("down"))

	assert.Error(t, service.DeleteByPrefix(ctx, "users::"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_InvalidateKeys(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	service, err := NewRedisService(db, time.Minute)
	require.NoError(t, err)

	mock.ExpectDel("a", "b").SetVal(2)

	require.NoError(t, service.InvalidateKeys(ctx, []string{"a", "b"}))
	require.NoError(t, service.InvalidateKeys(ctx, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "users::", want: "users::"},
		{in: "a*b", want: `a\*b`},
		{in: "q?", want: `q\?`},
		{in: "[x]", want: `\[x\]`},
		{in: `back\slash`, want: `back\\slash`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeGlob(tt.in), "escapeGlob(%q)", tt.in)
	}
}

func TestRedisService_Miniredis(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	service, err := NewRedisService(client, time.Minute)
	require.NoError(t, err)

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"ann", "bob"}, nil
	}

	for i := 0; i < 2; i++ {
		result, err := service.GetOrFetch(ctx, "users::list", fetch)
		require.NoError(t, err)
		assert.Equal(t, []string{"ann", "bob"}, result)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, time.Minute, server.TTL("users::list"))

	server.FastForward(2 * time.Minute)
	_, err = service.GetOrFetch(ctx, "users::list", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, service.Put(ctx, "orders::a", 1, 0))
	require.NoError(t, service.Put(ctx, "orders::b", 2, 0))
	require.NoError(t, service.Put(ctx, "ordersx", 3, 0))
	require.NoError(t, service.DeleteByPrefix(ctx, "orders::"))
	assert.False(t, server.Exists("orders::a"))
	assert.False(t, server.Exists("orders::b"))
	assert.True(t, server.Exists("ordersx"))
	assert.True(t, server.Exists("users::list"))
}

func TestRedisService_ConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	service, err := NewRedisService(client, time.Minute)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.GetOrFetch(ctx, "shared", fetch)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRedisService_SharedFetchOutlivesCanceledCaller(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	service, err := NewRedisService(client, time.Minute)
	require.NoError(t, err)

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 7, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := service.GetOrFetch(firstCtx, "shared", fetch)
		firstErr <- err
	}()
	<-started

	waiter := make(chan any, 1)
	go func() {
		value, err := service.GetOrFetch(context.Background(), "shared", fetch)
		assert.NoError(t, err)
		waiter <- value
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(release)
	assert.Equal(t, 7, <-waiter)
	assert.True(t, server.Exists("shared"))
}
