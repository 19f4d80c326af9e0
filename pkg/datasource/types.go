// Package datasource defines the JDBC datasource record managed on a
// WildFly/JBoss server, along with its defaulting rules.
package datasource

import (
	"fmt"
	"strings"
)

// TransactionIsolation is the JDBC transaction isolation level of a datasource.
type TransactionIsolation string

const (
	TransactionReadUncommitted TransactionIsolation = "TRANSACTION_READ_UNCOMMITTED"
	TransactionReadCommitted   TransactionIsolation = "TRANSACTION_READ_COMMITTED"
	TransactionRepeatableRead  TransactionIsolation = "TRANSACTION_REPEATABLE_READ"
	TransactionSerializable    TransactionIsolation = "TRANSACTION_SERIALIZABLE"
	TransactionNone            TransactionIsolation = "TRANSACTION_NONE"
)

// Validate checks if the isolation level is known.
func (t TransactionIsolation) Validate() error {
	switch t {
	case TransactionReadUncommitted, TransactionReadCommitted, TransactionRepeatableRead,
		TransactionSerializable, TransactionNone:
		return nil
	default:
		return fmt.Errorf("invalid transaction isolation: %q", t)
	}
}

// ParseTransactionIsolation parses an isolation level. The TRANSACTION_ prefix
// is optional and matching is case-insensitive.
func ParseTransactionIsolation(s string) (TransactionIsolation, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if !strings.HasPrefix(name, "TRANSACTION_") {
		name = "TRANSACTION_" + name
	}
	t := TransactionIsolation(name)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// StatusFilter selects datasources by their enabled state when listing.
type StatusFilter string

const (
	StatusEnabled  StatusFilter = "ENABLED"
	StatusDisabled StatusFilter = "DISABLED"
	StatusAll      StatusFilter = "ALL"
)

// Validate checks if the filter is known.
func (f StatusFilter) Validate() error {
	switch f {
	case StatusEnabled, StatusDisabled, StatusAll:
		return nil
	default:
		return fmt.Errorf("invalid status filter: %q", f)
	}
}

// Matches reports whether a datasource with the given enabled state passes the filter.
func (f StatusFilter) Matches(enabled bool) bool {
	switch f {
	case StatusAll:
		return true
	case StatusEnabled:
		return enabled
	case StatusDisabled:
		return !enabled
	default:
		return false
	}
}

// ParseStatusFilter parses a filter name case-insensitively. An empty string means ALL.
func ParseStatusFilter(s string) (StatusFilter, error) {
	if strings.TrimSpace(s) == "" {
		return StatusAll, nil
	}
	f := StatusFilter(strings.ToUpper(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}
