package trips

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// ProviderVeoRide is the display name VeoRide profiles carry.
	ProviderVeoRide = "VeoRide INC."

	// veoRideUUID is VeoRide's registered provider UUID, used as the
	// splice prefix when the trip record lacks a usable provider_id.
	veoRideUUID = "0309585e-599f-4e57-ac85-ffffffffffff"
)

// needsIntegerIDFix reports whether a provider ships integer identifiers
// instead of the UUIDs the warehouse expects.
func needsIntegerIDFix(provider string) bool {
	return strings.EqualFold(provider, ProviderVeoRide)
}

// applyIntegerIDFix rewrites integer identifiers in place. trip_id and
// device_id become synthetic UUIDs seeded with the integer; vehicle_id
// becomes its decimal string. String identifiers pass through untouched,
// so the fix is idempotent across reruns.
func applyIntegerIDFix(data map[string]any) {
	prefix := veoRideUUID
	if s, ok := data["provider_id"].(string); ok && len(s) == len(veoRideUUID) {
		prefix = s
	}
	for _, key := range []string{"trip_id", "device_id"} {
		if n, ok := intValue(data[key]); ok {
			data[key] = UUIDFromInt(n, prefix)
		}
	}
	if n, ok := intValue(data["vehicle_id"]); ok {
		data["vehicle_id"] = strconv.FormatUint(n, 10)
	}
}

// UUIDFromInt derives a deterministic UUID for an integer identifier.
// The integer's 16-byte big-endian encoding is formatted as a UUID, and
// its leading run of zeros is replaced by the same span of the provider
// UUID. The mapping is injective per provider, so reruns upsert the
// same warehouse row.
func UUIDFromInt(n uint64, providerUUID string) string {
	var raw uuid.UUID
	binary.BigEndian.PutUint64(raw[8:], n)
	intID := raw.String()

	k := 0
	for k < len(intID) && (intID[k] == '0' || intID[k] == '-') {
		k++
	}
	if k > len(providerUUID) {
		k = len(providerUUID)
	}
	return providerUUID[:k] + intID[k:]
}

// intValue extracts a non-negative integer from the loosely typed forms
// JSON decoding produces. Strings never qualify; an identifier that is
// already a string needs no fix.
func intValue(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		i, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
