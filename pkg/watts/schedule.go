package watts

// Schedule is the price list of host primitives. It is configuration, not
// contract: every node in a network must run with the same schedule.
type Schedule struct {
	// Transaction is charged once before the root method runs.
	Transaction uint64 `yaml:"transaction"`

	// Context is charged per execution context accessor.
	Context uint64 `yaml:"context"`

	// StorageRead and StorageWrite are charged per storage access, plus
	// StoragePerByte for every key and value byte touched.
	StorageRead    uint64 `yaml:"storage_read"`
	StorageWrite   uint64 `yaml:"storage_write"`
	StoragePerByte uint64 `yaml:"storage_per_byte"`

	// BalanceRead and Transfer price ledger access.
	BalanceRead uint64 `yaml:"balance_read"`
	Transfer    uint64 `yaml:"transfer"`

	// Event and EventPerByte price event emission.
	Event        uint64 `yaml:"event"`
	EventPerByte uint64 `yaml:"event_per_byte"`

	// HashBase and HashPerByte price hashing.
	HashBase    uint64 `yaml:"hash_base"`
	HashPerByte uint64 `yaml:"hash_per_byte"`

	// SignatureVerify prices one Ed25519 verification.
	SignatureVerify uint64 `yaml:"signature_verify"`

	// Invoke is charged per cross-program call.
	Invoke uint64 `yaml:"invoke"`
}

// DefaultSchedule returns the default price list.
func DefaultSchedule() Schedule {
	return Schedule{
		Transaction:     1_000,
		Context:         5,
		StorageRead:     100,
		StorageWrite:    300,
		StoragePerByte:  1,
		BalanceRead:     50,
		Transfer:        150,
		Event:           100,
		EventPerByte:    1,
		HashBase:        85,
		HashPerByte:     1,
		SignatureVerify: 720,
		Invoke:          1_000,
	}
}

// StorageReadCost prices a read of a key.
func (s Schedule) StorageReadCost(keyLen int) uint64 {
	return s.StorageRead + s.StoragePerByte*uint64(keyLen)
}

// StorageWriteCost prices a write of a key and value.
func (s Schedule) StorageWriteCost(keyLen, valueLen int) uint64 {
	return s.StorageWrite + s.StoragePerByte*uint64(keyLen+valueLen)
}

// EventCost prices an event with the given encoded size.
func (s Schedule) EventCost(size int) uint64 {
	return s.Event + s.EventPerByte*uint64(size)
}

// HashCost prices hashing n bytes.
func (s Schedule) HashCost(n int) uint64 {
	return s.HashBase + s.HashPerByte*uint64(n)
}
