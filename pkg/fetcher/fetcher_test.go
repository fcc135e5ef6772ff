package fetcher

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/apierror"
)

const fetcherTestPrefix = "fetcher:fetcher_test"

type noopHandler struct{ id int }

func (*noopHandler) Process(context.Context, *api.Call) error { return nil }

func newNoop() api.Handler { return &noopHandler{} }

func TestFilePath_Convention(t *testing.T) {
	f := New(DefaultConfig())

	cases := []struct {
		endpoint, method, want string
	}{
		{"products/10/skus", "get", "api/products/skus/list"},
		{"products", "get", "api/products/list"},
		{"products/10", "get", "api/products/get"},
		{"products", "post", "api/products/post"},
		{"products/10", "PUT", "api/products/put"},
		{"Products/10/SKUS/5", "get", "api/products/skus/get"},
		{"products", "", "api/products/list"},
	}
	for _, tc := range cases {
		if got := f.FilePath(tc.endpoint, tc.method); got != tc.want {
			t.Errorf("%s - FilePath(%q, %q) = %q, want %q", fetcherTestPrefix, tc.endpoint, tc.method, got, tc.want)
		}
	}
}

func TestFilePath_PrefixAndRoot(t *testing.T) {
	f := New(Config{Root: "/srv/app", PathPrefix: "src"})
	if got := f.FilePath("products", "get"); got != "/srv/app/src/api/products/list" {
		t.Errorf("%s - FilePath = %q", fetcherTestPrefix, got)
	}
	if f.BasePath() != "/srv/app/src/api" {
		t.Errorf("%s - BasePath = %q", fetcherTestPrefix, f.BasePath())
	}
}

func TestPathParameters(t *testing.T) {
	got := PathParameters("products/10/skus")
	if !reflect.DeepEqual(got, []string{"10"}) {
		t.Errorf("%s - PathParameters = %v, want [10]", fetcherTestPrefix, got)
	}
	got = PathParameters("Products/AB12/skus/X9")
	if !reflect.DeepEqual(got, []string{"ab12", "x9"}) {
		t.Errorf("%s - PathParameters = %v, want [ab12 x9]", fetcherTestPrefix, got)
	}
	if got := PathParameters("products"); len(got) != 0 {
		t.Errorf("%s - expected no parameters, got %v", fetcherTestPrefix, got)
	}
}

func TestEffectiveVerb(t *testing.T) {
	if EffectiveVerb(3, "get") != VerbList {
		t.Errorf("%s - 3 segments get should be list", fetcherTestPrefix)
	}
	if EffectiveVerb(2, "GET") != "get" {
		t.Errorf("%s - 2 segments get should be get", fetcherTestPrefix)
	}
	if EffectiveVerb(1, "post") != "post" {
		t.Errorf("%s - post stays post", fetcherTestPrefix)
	}
}

func TestResolve_Registered(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("products/skus", VerbList, newNoop)

	res, err := f.Resolve("products/10/skus", "get")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", fetcherTestPrefix, err)
	}
	if res.FilePath != "api/products/skus/list" {
		t.Errorf("%s - FilePath = %q", fetcherTestPrefix, res.FilePath)
	}
	if !reflect.DeepEqual(res.PathParameters, []string{"10"}) {
		t.Errorf("%s - PathParameters = %v", fetcherTestPrefix, res.PathParameters)
	}
	if _, ok := res.Handler.(*noopHandler); !ok {
		t.Errorf("%s - unexpected handler type %T", fetcherTestPrefix, res.Handler)
	}
}

func TestResolve_NewInstancePerCall(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("products", "get", newNoop)

	a, _ := f.Resolve("products/1", "get")
	b, _ := f.Resolve("products/1", "get")
	if a.Handler == b.Handler {
		t.Errorf("%s - expected distinct handler instances", fetcherTestPrefix)
	}
}

func TestResolve_NotFound(t *testing.T) {
	f := New(DefaultConfig())

	_, err := f.Resolve("unknown", "get")
	if !errors.Is(err, apierror.ErrHandlerNotFound) {
		t.Errorf("%s - expected HandlerNotFound, got %v", fetcherTestPrefix, err)
	}
}

func TestResolve_NilHandler(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("broken", "post", func() api.Handler { return nil })

	_, err := f.Resolve("broken", "post")
	if !errors.Is(err, apierror.ErrInvalidHandler) {
		t.Errorf("%s - expected InvalidHandler, got %v", fetcherTestPrefix, err)
	}
}

func TestResolve_PanickingFactory(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("broken", "post", func() api.Handler { panic("nope") })

	_, err := f.Resolve("broken", "post")
	if !errors.Is(err, apierror.ErrInvalidHandler) {
		t.Errorf("%s - expected InvalidHandler, got %v", fetcherTestPrefix, err)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("products/skus", "get", newNoop)

	for i := 0; i < 3; i++ {
		res, err := f.Resolve("products/10/skus/20", "get")
		if err != nil {
			t.Fatalf("%s - unexpected error: %v", fetcherTestPrefix, err)
		}
		if res.FilePath != "api/products/skus/get" || !reflect.DeepEqual(res.PathParameters, []string{"10", "20"}) {
			t.Errorf("%s - iteration %d: %+v", fetcherTestPrefix, i, res)
		}
	}
}

func TestResolve_ReRegisterInvalidatesCache(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("products", "post", func() api.Handler { return &noopHandler{id: 1} })
	if _, err := f.Resolve("products", "post"); err != nil {
		t.Fatalf("%s - unexpected error: %v", fetcherTestPrefix, err)
	}

	f.Register("products", "post", func() api.Handler { return &noopHandler{id: 2} })
	res, err := f.Resolve("products", "post")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", fetcherTestPrefix, err)
	}
	if res.Handler.(*noopHandler).id != 2 {
		t.Errorf("%s - stale cached factory used", fetcherTestPrefix)
	}
}

func TestResolve_Concurrent(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("products", "get", newNoop)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Resolve("products/1", "get"); err != nil {
				t.Errorf("%s - unexpected error: %v", fetcherTestPrefix, err)
			}
		}()
	}
	wg.Wait()
}

func TestRoutes(t *testing.T) {
	f := New(DefaultConfig())
	f.Register("products", "post", newNoop)
	f.Register("/products/", "LIST", newNoop)

	want := []string{"api/products/list", "api/products/post"}
	if got := f.Routes(); !reflect.DeepEqual(got, want) {
		t.Errorf("%s - Routes = %v, want %v", fetcherTestPrefix, got, want)
	}
}
