package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultKeypairPath is the Solana CLI default keypair location.
const DefaultKeypairPath = "~/.config/solana/id.json"

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// LoadKeypair reads a keypair file holding a JSON array of 64 bytes.
func LoadKeypair(path string) (*Keypair, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", expanded, err)
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", expanded, err)
	}

	b := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range in %s", ErrInvalidKey, i, expanded)
		}
		b[i] = byte(v)
	}

	kp, err := FromPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("keypair %s: %w", expanded, err)
	}
	return kp, nil
}

// SaveKeypair writes kp in keypair file format with owner-only permissions.
// Parent directories are created as needed.
func SaveKeypair(path string, kp *Keypair) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return fmt.Errorf("create keypair directory: %w", err)
	}

	raw := kp.Bytes()
	values := make([]int, len(raw))
	for i, b := range raw {
		values[i] = int(b)
	}
	out, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}

	if err := os.WriteFile(expanded, out, 0o600); err != nil {
		return fmt.Errorf("write keypair %s: %w", expanded, err)
	}
	return nil
}
