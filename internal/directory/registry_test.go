package directory

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edgedir/rd/pkg/linkformat"
)

func TestRegisterOrUpdate_Idempotent(t *testing.T) {
	g, _ := newTestRegistry(t)
	src := testSource
	payload := []byte(`</sensors/temp>;rt=temperature`)

	first, created, err := g.RegisterOrUpdate("", "node1", linkformat.ParseQuery("ep=node1&lt=3600"), payload, src)
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if !created {
		t.Error("first registration not reported as created")
	}

	second, created, err := g.RegisterOrUpdate("", "node1", linkformat.ParseQuery("ep=node1&lt=3600"), payload, src)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if created {
		t.Error("repeat registration reported as created")
	}
	if first != second {
		t.Error("repeat registration produced a new object")
	}
	if first.Links(nil) != second.Links(nil) {
		t.Error("repeat registration changed the serialized tree")
	}
	if g.Count() != 1 {
		t.Errorf("count: got %d, want 1", g.Count())
	}
}

func TestRegisterOrUpdate_ValidatesName(t *testing.T) {
	g, _ := newTestRegistry(t)

	_, _, err := g.RegisterOrUpdate("", "", nil, nil, testSource)
	var validation *ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("missing name: got %v, want ErrValidation", err)
	}

	long := strings.Repeat("x", 64)
	_, _, err = g.RegisterOrUpdate("", long, linkformat.ParseQuery("ep="+long), nil, testSource)
	if !errors.As(err, &validation) {
		t.Fatalf("64-byte name: got %v, want ErrValidation", err)
	}
	if g.Count() != 0 {
		t.Errorf("rejected registration left state: count %d", g.Count())
	}
}

func TestRegisterOrUpdate_DomainsAreSeparate(t *testing.T) {
	g, _ := newTestRegistry(t)

	a, _, err := g.RegisterOrUpdate("floor1", "node1", linkformat.ParseQuery("ep=node1&d=floor1"), nil, testSource)
	if err != nil {
		t.Fatalf("register floor1: %v", err)
	}
	b, created, err := g.RegisterOrUpdate("floor2", "node1", linkformat.ParseQuery("ep=node1&d=floor2"), nil, testSource)
	if err != nil {
		t.Fatalf("register floor2: %v", err)
	}
	if !created || a == b {
		t.Error("same name in another domain did not create a distinct registration")
	}
	if got := g.Domains(); len(got) != 2 || got[0] != "floor1" || got[1] != "floor2" {
		t.Errorf("domains: got %v", got)
	}
}

func TestFindByLocation(t *testing.T) {
	g, _ := newTestRegistry(t)
	reg := register(t, g, "ep=node1", "", testSource)

	if reg.Location() == "" {
		t.Fatal("empty location token")
	}
	got, ok := g.FindByLocation(reg.Location())
	if !ok || got != reg {
		t.Error("location lookup did not return the registration")
	}

	reg.Delete()
	if _, ok := g.FindByLocation(reg.Location()); ok {
		t.Error("location still resolvable after delete")
	}
}

func TestConcurrentRegistration_SingleCreate(t *testing.T) {
	// Real clock here: the mock is not safe to drive from many goroutines
	// while registrations rearm timers.
	g := NewRegistry(nil, zap.NewNop())

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := g.RegisterOrUpdate("", "node1", linkformat.ParseQuery("ep=node1&lt=3600"), nil, testSource)
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if creates != 1 {
		t.Errorf("got %d creates, want 1", creates)
	}
	if g.Count() != 1 {
		t.Errorf("count: got %d, want 1", g.Count())
	}
}

func TestAllInDomain_Sorted(t *testing.T) {
	g, _ := newTestRegistry(t)
	register(t, g, "ep=zz", "", testSource)
	register(t, g, "ep=aa", "", testSource)
	register(t, g, "ep=mm&d=other", "", testSource)

	local := g.AllInDomain("local")
	if len(local) != 2 || local[0].Name() != "aa" || local[1].Name() != "zz" {
		t.Errorf("local: got %d regs, first %q", len(local), local[0].Name())
	}
	if all := g.AllInDomain(""); len(all) != 3 {
		t.Errorf("all: got %d regs, want 3", len(all))
	}
}

func TestEvictHook(t *testing.T) {
	g, mock := newTestRegistry(t)

	type evict struct {
		name    string
		expired bool
	}
	var got []evict
	g.SetEvictHook(func(r *Registration, expired bool) {
		got = append(got, evict{name: r.Name(), expired: expired})
	})

	register(t, g, "ep=short&lt=60", "", testSource)
	reg := register(t, g, "ep=manual&lt=3600", "", testSource)

	mock.Add(61 * time.Second)
	reg.Delete()

	want := []evict{{"short", true}, {"manual", false}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("evictions: got %+v, want %+v", got, want)
	}
}
