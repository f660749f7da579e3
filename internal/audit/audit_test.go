package audit

import (
	"os"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"secret present", "NEO4J_PASSWORD", "s3cret", "set"},
		{"secret absent", "NEO4J_PASSWORD", "", "unset"},
		{"api key present", "GRAPHRAG_API_KEY", "tok", "set"},
		{"plain value passes through", "MODEL_PROVIDER", "azure", "azure"},
		{"plain absent", "NEO4J_URI", "", "unset"},
		{"unknown key passes through", "SOME_OTHER_VAR", "x", "x"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitiseKey(tc.key, tc.value); got != tc.want {
				t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
			}
		})
	}
}

// TestAuditedVarsSecretsAreSecret guards the derived lookup: every variable
// marked secret in the table must redact through SanitiseKey.
func TestAuditedVarsSecretsAreSecret(t *testing.T) {
	t.Parallel()

	for _, v := range auditedVars {
		if !v.secret {
			continue
		}
		if got := SanitiseKey(v.key, "value"); got != "set" {
			t.Errorf("%s is marked secret but SanitiseKey returned %q", v.key, got)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()

	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("empty path: expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected path unchanged, got %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.graphrag/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.graphrag/config.yaml" {
			t.Errorf("expected home collapsed, got %q", got)
		}
	}
}
