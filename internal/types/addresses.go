package types

// Well-known addresses.
var (
	// VoidAddress is the all-zero address. It is the default sender of
	// calls that do not name one and is never a valid deployment target.
	VoidAddress = Address{}

	// VoidBytes is VoidAddress as a byte string.
	VoidBytes = Bytes{s: string(make([]byte, AddressSize))}
)
