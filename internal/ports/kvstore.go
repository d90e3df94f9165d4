package ports

// KVStore is the non-volatile key-value store holding device secrets.
type KVStore interface {
	Has(key string) (bool, error)
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}
