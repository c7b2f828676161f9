package gateway

import (
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestNewRouteTable はNewRouteTable関数を検証する。
func TestNewRouteTable(t *testing.T) {
	t.Parallel()

	t.Run("転送先が無いルートは警告を出して無効化されること", func(t *testing.T) {
		t.Parallel()

		logger, hook := logtest.NewNullLogger()
		table, err := NewRouteTable([]ServiceConfig{
			{Name: "booking-service", Prefix: "/bookings", URL: "http://booking:3000"},
			{Name: "tour-service", Prefix: "/tours"},
		}, logger)
		if err != nil {
			t.Fatalf("NewRouteTable()でエラーが発生: %v", err)
		}

		entries := table.Entries()
		if len(entries) != 1 || entries[0].Prefix != "/bookings" {
			t.Errorf("Entries() = %+v", entries)
		}

		entry := hook.LastEntry()
		if entry == nil {
			t.Fatal("警告ログが出力されていない")
		}
		if entry.Message != "Missing upstream for /tours; route disabled." {
			t.Errorf("message = %q", entry.Message)
		}
	})

	t.Run("重複するプレフィックスはエラーになること", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		for _, services := range [][]ServiceConfig{
			{{Name: "a", Prefix: "/bookings"}, {Name: "b", Prefix: "/bookings"}},
			{{Name: "a", Prefix: "/bookings"}, {Name: "b", Prefix: "/bookings/admin"}},
			{{Name: "a", Prefix: "/bookings/admin"}, {Name: "b", Prefix: "/bookings"}},
		} {
			_, err := NewRouteTable(services, logger)
			if !errors.Is(err, ErrOverlappingPrefix) {
				t.Errorf("%+v: err = %v, want %v", services, err, ErrOverlappingPrefix)
			}
		}
	})

	t.Run("セグメント境界で異なるプレフィックスは共存できること", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		if _, err := NewRouteTable([]ServiceConfig{
			{Name: "a", Prefix: "/tour"},
			{Name: "b", Prefix: "/tours"},
		}, logger); err != nil {
			t.Errorf("NewRouteTable()でエラーが発生: %v", err)
		}
	})

	t.Run("不正なプレフィックスはエラーになること", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		for _, prefix := range []string{"", "/", "bookings", "/bookings/"} {
			_, err := NewRouteTable([]ServiceConfig{{Name: "a", Prefix: prefix}}, logger)
			if !errors.Is(err, ErrInvalidPrefix) {
				t.Errorf("prefix=%q: err = %v, want %v", prefix, err, ErrInvalidPrefix)
			}
		}
	})

	t.Run("不正な転送先URLはエラーになること", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		for _, u := range []string{"booking:3000", "ftp://booking", "http://", "://bad"} {
			_, err := NewRouteTable([]ServiceConfig{{Name: "a", Prefix: "/a", URL: u}}, logger)
			if !errors.Is(err, ErrInvalidUpstream) {
				t.Errorf("url=%q: err = %v, want %v", u, err, ErrInvalidUpstream)
			}
		}
	})
}

// TestRouteTableResolve はResolveメソッドを検証する。
func TestRouteTableResolve(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	table, err := NewRouteTable([]ServiceConfig{
		{Name: "auth-service", Prefix: "/auth", URL: "http://auth:3001"},
		{Name: "booking-service", Prefix: "/bookings", URL: "http://booking:3000"},
		{Name: "tour-service", Prefix: "/tours"},
	}, logger)
	if err != nil {
		t.Fatalf("NewRouteTable()でエラーが発生: %v", err)
	}

	cases := []struct {
		path   string
		found  bool
		prefix string
	}{
		{path: "/auth", found: true, prefix: "/auth"},
		{path: "/auth/login", found: true, prefix: "/auth"},
		{path: "/bookings/42", found: true, prefix: "/bookings"},
		{path: "/bookings/42/items", found: true, prefix: "/bookings"},
		{path: "/bookingsx", found: false},
		{path: "/authorize", found: false},
		{path: "/tours/1", found: false},
		{path: "/", found: false},
		{path: "/unknown", found: false},
	}
	for _, tc := range cases {
		entry, ok := table.Resolve(tc.path)
		if ok != tc.found {
			t.Errorf("Resolve(%q) found = %v, want %v", tc.path, ok, tc.found)
			continue
		}
		if ok && entry.Prefix != tc.prefix {
			t.Errorf("Resolve(%q).Prefix = %q, want %q", tc.path, entry.Prefix, tc.prefix)
		}
	}
}

// TestRouteTableDependencies はDependenciesメソッドを検証する。
func TestRouteTableDependencies(t *testing.T) {
	t.Parallel()

	t.Run("無効なルートも含めて設定順に返すこと", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		table, err := NewRouteTable([]ServiceConfig{
			{Name: "auth-service", Prefix: "/auth", URL: "http://auth:3001"},
			{Name: "tour-service", Prefix: "/tours"},
		}, logger)
		if err != nil {
			t.Fatalf("NewRouteTable()でエラーが発生: %v", err)
		}

		deps := table.Dependencies()
		want := []Dependency{
			{Name: "auth-service", URL: "http://auth:3001"},
			{Name: "tour-service", URL: ""},
		}
		if len(deps) != len(want) {
			t.Fatalf("Dependencies() = %d件, want %d件", len(deps), len(want))
		}
		for i := range want {
			if deps[i] != want[i] {
				t.Errorf("Dependencies()[%d] = %+v, want %+v", i, deps[i], want[i])
			}
		}
	})
}
