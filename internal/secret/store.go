// Package secret holds connection passwords apart from the metadata
// database. Keys look like "db:<connection id>".
package secret

// SecretStore is the storage contract shared by the file, env and memory
// backends. A missing key reads as (nil, nil) and deleting it is a no-op.
type SecretStore interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// Chain reads from each store in order and returns the first non-empty
// value. Writes go to the first store.
type Chain []SecretStore

func (c Chain) Set(key string, value []byte) error {
	if len(c) == 0 {
		return nil
	}
	return c[0].Set(key, value)
}

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c Chain) Delete(key string) error {
	for _, s := range c {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
