package keys

import (
	"bytes"
	"strings"
	"testing"

	"setupingest/src/auth"
)

func TestPrintOperatorKeyHash(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintOperatorKeyHash(&buf, "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	hash, ok := strings.CutPrefix(line, "OPERATOR_KEY_HASH=")
	if !ok {
		t.Fatalf("unexpected output %q", line)
	}
	if err := auth.CheckKey(hash, "s3cret"); err != nil {
		t.Fatalf("hash does not match key: %v", err)
	}
}

func TestPrintOperatorKeyHashFromEnv(t *testing.T) {
	t.Setenv("OPERATOR_KEY", "")

	var buf bytes.Buffer
	if err := PrintOperatorKeyHash(&buf, ""); err == nil {
		t.Fatalf("expected an error without a key")
	}

	t.Setenv("OPERATOR_KEY", "from-env")
	if err := PrintOperatorKeyHash(&buf, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
