package runtime

import "testing"

func TestStrictIdentityMode(t *testing.T) {
	t.Run("production env", func(t *testing.T) {
		t.Setenv("AGENT_ENV", "production")
		ResetStrictIdentityModeCache()
		if !StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = false, want true")
		}
	})

	t.Run("tls credentials injected", func(t *testing.T) {
		t.Setenv("AGENT_ENV", "development")
		t.Setenv("AGENT_TLS_CERT", "cert")
		t.Setenv("AGENT_TLS_KEY", "key")
		t.Setenv("AGENT_TLS_ROOT_CA", "ca")
		ResetStrictIdentityModeCache()
		if !StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = false, want true")
		}
	})

	t.Run("dev without credentials", func(t *testing.T) {
		t.Setenv("AGENT_ENV", "development")
		ResetStrictIdentityModeCache()
		if StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = true, want false")
		}
	})
}
