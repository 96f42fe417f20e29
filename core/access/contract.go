// This file contains the identity under which a contract instance owns
// resources.

package access

import "fmt"

// ContractIdentity is the identity of a contract instance. It lets a contract
// own resources, like token balances, under a name that no signer can
// impersonate because signer identities marshal with a different tag.
//
// - implements access.Identity
type ContractIdentity struct {
	name string
}

// NewContractIdentity creates the identity of the contract with the given
// name.
func NewContractIdentity(name string) ContractIdentity {
	return ContractIdentity{name: name}
}

// MarshalText implements encoding.TextMarshaler. It returns the contract name
// with a tag in front of it.
func (ci ContractIdentity) MarshalText() ([]byte, error) {
	return []byte(ci.String()), nil
}

// Equal implements access.Identity. It returns true when the other object is
// the identity of the same contract.
func (ci ContractIdentity) Equal(other interface{}) bool {
	ident, ok := other.(ContractIdentity)
	return ok && ident.name == ci.name
}

// String implements fmt.Stringer. It returns a string representation of the
// identity.
func (ci ContractIdentity) String() string {
	return fmt.Sprintf("contract:%s", ci.name)
}
