package kernel

import (
	"strings"

	"orderdispatch/internal/pkg/errs"

	"github.com/google/uuid"
)

const maxIDLength = 64

var ErrIDIsNotConstructed = errs.NewValueIsRequiredError("ID must be created via NewID or ParseID")

// ID identifies an order, an agent, a merchant or a customer.
type ID struct {
	value string
}

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID{value: uuid.NewString()}
}

// ParseID accepts an identifier supplied by an external producer.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, errs.NewValueIsRequiredError("id")
	}
	if len(s) > maxIDLength {
		return ID{}, errs.NewValueIsOutOfRangeError("id length", len(s), 1, maxIDLength)
	}
	return ID{value: s}, nil
}

// MustParseID is ParseID for literals known to be valid; it panics otherwise.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return id.value
}

func (id ID) IsEqual(other ID) bool {
	return id.value == other.value
}

// Less orders identifiers lexicographically; the matcher uses it as a tie-break.
func (id ID) Less(other ID) bool {
	return id.value < other.value
}

func (id ID) Validate() error {
	if id.value == "" {
		return ErrIDIsNotConstructed
	}
	return nil
}
