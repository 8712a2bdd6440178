package methodcache

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/goliatone/go-method-cache/cache"
)

func TestNewManager(t *testing.T) {
	if _, err := NewManager(nil, nil); err == nil {
		t.Error("expected error for nil service")
	}

	service := newLocalService(t)
	if _, err := NewManager(service, nil, WithKeyErrorPolicy("ignore")); err == nil {
		t.Error("expected error for unknown key error policy")
	}

	m, err := NewManager(service, cache.NewDelimitedKeyGenerator())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	key, _ := m.KeyGenerator().GenerateKey("f", "ab", "c")
	if key != "f::ab::c" {
		t.Errorf("expected the supplied key generator, got key %q", key)
	}
}

func TestManager_CacheNormalizesNames(t *testing.T) {
	m, _ := newTestManager(t)

	a := m.Cache("UserProfiles")
	b := m.Cache("user-profiles")
	c := m.Cache("user profiles")

	if a != b || b != c {
		t.Error("expected equivalent names to share one cache")
	}
	if a.Name() != "user_profiles" {
		t.Errorf("Name() = %q, want user_profiles", a.Name())
	}
	if a.Namespace() != "user_profiles::" {
		t.Errorf("Namespace() = %q, want user_profiles::", a.Namespace())
	}

	m.Cache("orders")
	if got, want := m.Names(), []string{"orders", "user_profiles"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestManager_CacheKeepsCaselessNamesApart(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	users := m.Cache("用户")
	orders := m.Cache("订单")
	symbols := m.Cache("!!!")

	if users == orders || users == m.Cache("") || symbols == m.Cache("") {
		t.Fatal("expected distinct caches")
	}

	if _, err := Cacheable(ctx, users, "find", []any{1}, func(context.Context) (string, error) { return "ann", nil }); err != nil {
		t.Fatalf("Cacheable() error: %v", err)
	}
	got, err := Cacheable(ctx, orders, "find", []any{1}, func(context.Context) (string, error) { return "order-1", nil })
	if err != nil {
		t.Fatalf("Cacheable() error: %v", err)
	}
	if got != "order-1" {
		t.Errorf("orders read %q from another cache", got)
	}
}

func TestManager_Clear(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	fetch, calls := countingFetch("v")
	_, _ = Cacheable(ctx, m.Cache("users"), "find", []any{1}, fetch)
	_, _ = Cacheable(ctx, m.Cache("orders"), "find", []any{1}, fetch)

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	_, _ = Cacheable(ctx, m.Cache("users"), "find", []any{1}, fetch)
	_, _ = Cacheable(ctx, m.Cache("orders"), "find", []any{1}, fetch)

	if calls.Load() != 4 {
		t.Errorf("expected every cache to refetch, got %d fetches", calls.Load())
	}
}

type failingPrefixService struct {
	cache.CacheService
}

func (failingPrefixService) DeleteByPrefix(ctx context.Context, prefix string) error {
	return errors.New("scan failed")
}

func TestManager_ClearJoinsErrors(t *testing.T) {
	service := failingPrefixService{CacheService: newLocalService(t)}
	m, err := NewManager(service, nil)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	m.Cache("users")
	m.Cache("orders")

	err = m.Clear(context.Background())
	if err == nil {
		t.Fatal("expected error from Clear")
	}

	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("expected two joined errors, got %v", err)
	}
}

func TestManager_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, _ := newTestManager(t, WithMeterProvider(provider))
	c := m.Cache("users")
	ctx := context.Background()

	fetch, _ := countingFetch("ann")
	_, _ = Cacheable(ctx, c, "findUser", []any{1}, fetch)
	_, _ = Cacheable(ctx, c, "findUser", []any{1}, fetch)
	_, _ = Cacheable(ctx, c, "findUser", []any{nil}, fetch)
	_, _ = Refresh(ctx, c, "findUser", []any{1}, fetch)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "methodcache.requests" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", md.Data)
			}
			for _, dp := range sum.DataPoints {
				name, _ := dp.Attributes.Value(attribute.Key("cache.name"))
				if name.AsString() != "users" {
					t.Errorf("unexpected cache.name %q", name.AsString())
				}
				result, _ := dp.Attributes.Value(attribute.Key("cache.result"))
				got[result.AsString()] = dp.Value
			}
		}
	}

	want := map[string]int64{"miss": 1, "hit": 1, "bypass": 1, "refresh": 1}
	for result, count := range want {
		if got[result] != count {
			t.Errorf("cache.result=%s: got %d, want %d (all: %v)", result, got[result], count, got)
		}
	}
}
