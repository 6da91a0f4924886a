package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session.
	ErrAuth      = "E_AUTH"
	ErrNotJoined = "E_NOT_JOINED"

	// Action layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrBlocked     = "E_BLOCKED"
	ErrOutOfBounds = "E_OUT_OF_BOUNDS"
	ErrNoParcel    = "E_NO_PARCEL"
	ErrNotDelivery = "E_NOT_DELIVERY"
	ErrCapacity    = "E_CAPACITY"
	ErrRateLimit   = "E_RATE_LIMIT"
	ErrStale       = "E_STALE"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrAuth:            {},
	ErrNotJoined:       {},
	ErrBadRequest:      {},
	ErrBlocked:         {},
	ErrOutOfBounds:     {},
	ErrNoParcel:        {},
	ErrNotDelivery:     {},
	ErrCapacity:        {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
