package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF"},
		{"  aabbccddeeff ", "AA:BB:CC:DD:EE:FF"},
		{"AA:BB", "AA:BB"},
		{"not-a-mac", "NOT:A:MAC"},
	}

	for _, tt := range tests {
		if got := NormalizeMAC(tt.in); got != tt.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveDeviceID(t *testing.T) {
	a := DeriveDeviceID("AA:BB:CC:DD:EE:01")

	if !strings.HasPrefix(a, "dev-") || len(a) != len("dev-")+16 {
		t.Errorf("DeriveDeviceID() = %q, want dev- followed by 16 hex chars", a)
	}
	if again := DeriveDeviceID("AA:BB:CC:DD:EE:01"); again != a {
		t.Errorf("same MAC gave %q then %q", a, again)
	}
	if lower := DeriveDeviceID("aa-bb-cc-dd-ee-01"); lower != a {
		t.Errorf("equivalent MAC spelling gave %q, want %q", lower, a)
	}
	if other := DeriveDeviceID("AA:BB:CC:DD:EE:02"); other == a {
		t.Errorf("different MACs both gave %q", a)
	}
}

type stubResolver struct {
	ids   map[string]string
	err   error
	calls int
}

func (r *stubResolver) DeviceIDByMAC(_ context.Context, mac string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if id, ok := r.ids[mac]; ok {
		return id, nil
	}
	return "", device.ErrDeviceNotFound
}

func TestIdentityResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers stored id", func(t *testing.T) {
		lookup := &stubResolver{ids: map[string]string{"AA:BB": "dev-legacy"}}
		r := newIdentityResolver(lookup, noopLogger{})

		if got := r.Resolve(ctx, "AA:BB"); got != "dev-legacy" {
			t.Errorf("Resolve() = %q, want dev-legacy", got)
		}
		r.Resolve(ctx, "AA:BB")
		if lookup.calls != 1 {
			t.Errorf("lookup called %d times, want 1 (cached)", lookup.calls)
		}
	})

	t.Run("derives unknown mac", func(t *testing.T) {
		r := newIdentityResolver(&stubResolver{}, noopLogger{})
		if got, want := r.Resolve(ctx, "AA:BB"), DeriveDeviceID("AA:BB"); got != want {
			t.Errorf("Resolve() = %q, want %q", got, want)
		}
	})

	t.Run("lookup failure derives", func(t *testing.T) {
		r := newIdentityResolver(&stubResolver{err: errors.New("db down")}, noopLogger{})
		if got, want := r.Resolve(ctx, "AA:BB"), DeriveDeviceID("AA:BB"); got != want {
			t.Errorf("Resolve() = %q, want %q", got, want)
		}
	})

	t.Run("no lookup", func(t *testing.T) {
		r := newIdentityResolver(nil, noopLogger{})
		if got, want := r.Resolve(ctx, "AA:BB"), DeriveDeviceID("AA:BB"); got != want {
			t.Errorf("Resolve() = %q, want %q", got, want)
		}
	})
}
