package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// deviceNamespace scopes the name-based UUIDs derived from MAC addresses.
// Changing it changes every device ID.
var deviceNamespace = uuid.MustParse("6f1c2a9e-4d3b-5e8f-9a7c-2b1d0e4f6a83")

const deviceIDPrefix = "dev-"

// NormalizeMAC upper-cases a hardware address and uses ':' separators.
// A bare 12-digit hex string is split into octets.
func NormalizeMAC(mac string) string {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	mac = strings.NewReplacer("-", ":", ".", ":").Replace(mac)

	if len(mac) == 12 && !strings.Contains(mac, ":") && isHex(mac) {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(mac[i : i+2])
		}
		return b.String()
	}
	return mac
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DeriveDeviceID returns the stable device ID for a hardware address.
// The same MAC always yields the same ID, across connections and restarts.
func DeriveDeviceID(mac string) string {
	u := uuid.NewSHA1(deviceNamespace, []byte(NormalizeMAC(mac)))
	return deviceIDPrefix + strings.ReplaceAll(u.String(), "-", "")[:16]
}

// MACResolver looks up an ID already assigned to a MAC. device.Repository
// satisfies it.
type MACResolver interface {
	DeviceIDByMAC(ctx context.Context, mac string) (string, error)
}

// identityResolver maps MACs to device IDs, preferring an ID already on
// record so devices keep their identity if the derivation ever changes.
type identityResolver struct {
	mu     sync.Mutex
	byMAC  map[string]string
	lookup MACResolver
	logger Logger
}

func newIdentityResolver(lookup MACResolver, logger Logger) *identityResolver {
	return &identityResolver{
		byMAC:  make(map[string]string),
		lookup: lookup,
		logger: logger,
	}
}

// Resolve returns the device ID for a normalised MAC.
func (r *identityResolver) Resolve(ctx context.Context, mac string) string {
	r.mu.Lock()
	id, ok := r.byMAC[mac]
	r.mu.Unlock()
	if ok {
		return id
	}

	if r.lookup != nil {
		stored, err := r.lookup.DeviceIDByMAC(ctx, mac)
		switch {
		case err == nil && stored != "":
			id = stored
		case err != nil && !errors.Is(err, device.ErrDeviceNotFound):
			r.logger.Warn("device id lookup failed, deriving", "mac", mac, "error", err)
		}
	}
	if id == "" {
		id = DeriveDeviceID(mac)
	}

	r.mu.Lock()
	r.byMAC[mac] = id
	r.mu.Unlock()

	return id
}
