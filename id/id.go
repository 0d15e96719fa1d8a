// Package id defines TypeID-based identity types for invoicing records.
//
// Every record uses a single ID struct whose prefix names the record kind.
// IDs are K-sortable (UUIDv7-based), globally unique and URL-safe in the
// format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record kind encoded in a TypeID.
type Prefix string

// Prefix constants for invoicing records.
const (
	PrefixInvoice   Prefix = "inv" // Invoice
	PrefixLineItem  Prefix = "li"  // Invoice line item
	PrefixRecurring Prefix = "rec" // Recurring billing configuration
	PrefixCustomer  Prefix = "cus" // Customer
	PrefixPayment   Prefix = "pay" // Recorded payment
	PrefixDelivery  Prefix = "dlv" // Send or charge request
)

// ID is the primary identifier type for invoicing records.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "inv_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires its prefix to equal expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// InvoiceID identifies an invoice (prefix: "inv").
type InvoiceID = ID

// LineItemID identifies an invoice line item (prefix: "li").
type LineItemID = ID

// RecurringID identifies a recurring billing configuration (prefix: "rec").
type RecurringID = ID

// CustomerID identifies a customer (prefix: "cus").
type CustomerID = ID

// PaymentID identifies a recorded payment (prefix: "pay").
type PaymentID = ID

// DeliveryID identifies a queued send or charge request (prefix: "dlv").
type DeliveryID = ID

func NewInvoiceID() ID   { return New(PrefixInvoice) }
func NewLineItemID() ID  { return New(PrefixLineItem) }
func NewRecurringID() ID { return New(PrefixRecurring) }
func NewCustomerID() ID  { return New(PrefixCustomer) }
func NewPaymentID() ID   { return New(PrefixPayment) }
func NewDeliveryID() ID  { return New(PrefixDelivery) }

func ParseInvoiceID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixInvoice) }
func ParseLineItemID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixLineItem) }
func ParseRecurringID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRecurring) }
func ParseCustomerID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixCustomer) }
func ParsePaymentID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixPayment) }
func ParseDeliveryID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixDelivery) }

// String returns the full TypeID string, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}

// FromString parses s, returning Nil for the empty string. Stores use it to
// map optional columns back to IDs.
func FromString(s string) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return Parse(s)
}
