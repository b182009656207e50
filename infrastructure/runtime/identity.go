// Package runtime provides environment/runtime detection helpers shared across the service layer.
package runtime

import (
	"os"
	"strings"
	"sync"
)

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the agent should fail closed on
// identity/security boundaries (e.g. only trust a signed instruction when its
// signature verifies against the claimed agent address).
//
// We treat a fully provisioned mTLS credential set as "strict" too, so a
// mis-set AGENT_ENV cannot silently weaken trust boundaries.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		env := Env()
		hasTLSCreds := strings.TrimSpace(os.Getenv("AGENT_TLS_CERT")) != "" &&
			strings.TrimSpace(os.Getenv("AGENT_TLS_KEY")) != "" &&
			strings.TrimSpace(os.Getenv("AGENT_TLS_ROOT_CA")) != ""
		strictIdentityModeValue = env == Production || hasTLSCreds
	})
	return strictIdentityModeValue
}
