// Package store persists serialized records under their deterministic
// addresses. Writes travel in batches that commit atomically: every
// precondition is checked before the first write takes effect.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avkeyd/internal/record"
)

// Storage errors. Backends wrap them with the record address.
var (
	// ErrNotFound is returned when no record exists at an address.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a create hits an occupied
	// address.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidOp is returned when a batch is structurally malformed.
	ErrInvalidOp = errors.New("invalid operation")
)

// OpKind selects the effect of an Op.
type OpKind uint8

const (
	// OpCreate writes a record that must not exist yet.
	OpCreate OpKind = iota

	// OpUpdate replaces a record that must exist.
	OpUpdate

	// OpDelete removes a record that must exist.
	OpDelete
)

// String returns the kind label used in scripts and errors.
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Op is one record operation inside an atomic batch.
type Op struct {
	Kind OpKind
	Addr record.Address
	Data []byte
}

// Create builds an op that writes a new record.
func Create(addr record.Address, data []byte) Op {
	return Op{Kind: OpCreate, Addr: addr, Data: data}
}

// Update builds an op that replaces an existing record.
func Update(addr record.Address, data []byte) Op {
	return Op{Kind: OpUpdate, Addr: addr, Data: data}
}

// Delete builds an op that removes an existing record.
func Delete(addr record.Address) Op {
	return Op{Kind: OpDelete, Addr: addr}
}

// Store persists records under their addresses.
type Store interface {
	// Get returns the record bytes at addr, or ErrNotFound.
	Get(ctx context.Context, addr record.Address) ([]byte, error)

	// Apply commits the batch atomically. Creates require the address
	// to be free, updates and deletes require it to be occupied; a
	// violated precondition aborts the whole batch before any write.
	Apply(ctx context.Context, ops ...Op) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources. Close is idempotent.
	Close() error
}

// validateOps rejects structurally broken batches before any backend
// work: unknown kinds, zero addresses, data on deletes, missing data on
// writes, and duplicate addresses (the batch outcome would depend on
// operation order).
func validateOps(ops []Op) error {
	seen := make(map[record.Address]struct{}, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case OpCreate, OpUpdate, OpDelete:
		default:
			return fmt.Errorf("%w: unknown kind %d", ErrInvalidOp, uint8(op.Kind))
		}

		if op.Addr.IsZero() {
			return fmt.Errorf("%w: zero address", ErrInvalidOp)
		}

		if op.Kind == OpDelete {
			if len(op.Data) != 0 {
				return fmt.Errorf("%w: delete carries data for %s", ErrInvalidOp, op.Addr)
			}
		} else if len(op.Data) == 0 {
			return fmt.Errorf("%w: empty record for %s", ErrInvalidOp, op.Addr)
		}

		if _, dup := seen[op.Addr]; dup {
			return fmt.Errorf("%w: duplicate address %s", ErrInvalidOp, op.Addr)
		}
		seen[op.Addr] = struct{}{}
	}
	return nil
}
