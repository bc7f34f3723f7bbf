package interfaces

import (
	"crl/capability"
)

// CapabilityService defines the capability registry operations consumed by
// the API surface
type CapabilityService interface {
	Has(cap capability.Capability, addr string) bool
	Grant(caller string, cap capability.Capability, addr string) error
	Revoke(caller string, cap capability.Capability, addr string) error
}
