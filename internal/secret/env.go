package secret

import (
	"fmt"
	"os"
	"strings"
)

// EnvPrefix is prepended to every key looked up by EnvStore.
const EnvPrefix = "COLLECTOR_SECRET_"

// EnvStore implements SecretStore over process environment variables.
// A key "pg-main" maps to COLLECTOR_SECRET_PG_MAIN.
type EnvStore struct {
	prefix string
}

// NewEnvStore creates an EnvStore. An empty prefix selects EnvPrefix.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = EnvPrefix
	}
	return &EnvStore{prefix: prefix}
}

// VarName returns the environment variable that holds key.
func (e *EnvStore) VarName(key string) string {
	var b strings.Builder
	b.WriteString(e.prefix)
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (e *EnvStore) Set(key string, value []byte) error {
	if err := os.Setenv(e.VarName(key), string(value)); err != nil {
		return fmt.Errorf("env secret set: %w", err)
	}
	return nil
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(e.VarName(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(e.VarName(key))
}
