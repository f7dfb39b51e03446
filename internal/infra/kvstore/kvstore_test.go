package kvstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/allensfl/coachingspace-app-sub001/internal/infra/kvstore"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
	"github.com/google/go-cmp/cmp"
)

func backends(t *testing.T) map[string]port.KVStore {
	t.Helper()

	sq, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "coachspace.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]port.KVStore{
		"memory": kvstore.NewMemory(),
		"sqlite": sq,
	}
}

func TestKVStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := kv.Get(ctx, "coachees"); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := kv.Set(ctx, "coachees", []byte(`[{"id":1}]`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := kv.Set(ctx, "coachees", []byte(`[{"id":1},{"id":2}]`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			got, ok, err := kv.Get(ctx, "coachees")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if string(got) != `[{"id":1},{"id":2}]` {
				t.Errorf("unexpected value %s", got)
			}

			if err := kv.Delete(ctx, "coachees"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := kv.Get(ctx, "coachees"); ok {
				t.Error("expected key to be deleted")
			}
		})
	}
}

func TestKVStore_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"coacheePortalData_2", "coacheePortalData_10", "coachees", "sessions"} {
				if err := kv.Set(ctx, k, []byte("{}")); err != nil {
					t.Fatalf("set %s: %v", k, err)
				}
			}

			keys, err := kv.Keys(ctx, "coacheePortalData_")
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			want := []string{"coacheePortalData_10", "coacheePortalData_2"}
			if diff := cmp.Diff(want, keys); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemory_FailWrites(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	boom := errors.New("quota exceeded")

	kv.FailWrites("tasks", boom)
	if err := kv.Set(ctx, "tasks", []byte("[]")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	kv.FailWrites("tasks", nil)
	if err := kv.Set(ctx, "tasks", []byte("[]")); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := kvstore.Open(context.Background(), kvstore.Options{Driver: "etcd"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
