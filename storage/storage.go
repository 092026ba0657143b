package storage

import (
	"context"
	"errors"
)

// Namespace is a durable storage area.
// The sync namespace follows the user around, the local one stays on this host
type Namespace string

const (
	NamespaceSync  Namespace = "sync"
	NamespaceLocal Namespace = "local"
)

func (n Namespace) String() string {
	return string(n)
}

// Keys held in the sync namespace
const (
	KeyBaseCurrency = "base_currency"
	KeySourceAPI    = "source_api"
	KeyCurrencyList = "currency_list"
)

// Keys held in the local namespace
const (
	KeyExchangeRates = "exchange_rates"
	KeyInputAmount   = "input_amount"
)

var ErrInvalidNamespace = errors.New("invalid namespace")

// Storage is a durable key-value store, split into namespaces.
// Values are opaque JSON documents
type Storage interface {
	// Get returns the values of the given keys.
	// Absent keys are left out of the result
	Get(ctx context.Context, ns Namespace, keys ...string) (map[string][]byte, error)

	// Set writes the given values, replacing existing ones
	Set(ctx context.Context, ns Namespace, items map[string][]byte) error
}

// ValidateNamespace checks the namespace is a known one
func ValidateNamespace(ns Namespace) error {
	switch ns {
	case NamespaceSync, NamespaceLocal:
		return nil
	default:
		return ErrInvalidNamespace
	}
}
