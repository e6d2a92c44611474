package keys

import (
	"errors"
	"fmt"
	"io"

	"setupingest/src/auth"
)

// PrintOperatorKeyHash writes the OPERATOR_KEY_HASH line for key, or for OPERATOR_KEY when key
// is empty.
func PrintOperatorKeyHash(w io.Writer, key string) error {
	if key == "" {
		key = GetConfig().OperatorKey
	}
	if key == "" {
		return errors.New("no operator key given")
	}

	hash, err := auth.HashKey(key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "OPERATOR_KEY_HASH=%s\n", hash)
	return err
}
