package domain

// Hasher is the core port for any hashing strategy. Used to fingerprint the
// upstream credential in logs without ever logging the credential itself.
type Hasher interface {
	Hash(data []byte) string
}
