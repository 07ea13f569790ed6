package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface. Attribute values are kept
// in ZCL wire encoding; decoding them is the caller's business.
type Store interface {
	// Attribute operations
	SaveAttribute(endpoint uint8, cluster, attr uint16, data []byte) error
	GetAttribute(endpoint uint8, cluster, attr uint16) ([]byte, error)
	ListAttributes(fn func(endpoint uint8, cluster, attr uint16, data []byte) error) error
	DeleteAttributes() error

	// EnsureNodeInfo loads the node identity, creating it on first
	// boot, and bumps the boot counter. Atomic in one transaction.
	EnsureNodeInfo() (*NodeInfo, error)
	GetNodeInfo() (*NodeInfo, error)

	// Close the store
	Close() error
}
