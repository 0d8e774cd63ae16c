package settings

// Config holds the two options the tree itself recognises. Everything an
// embedder of this library needs to configure lives here; there is no
// environment-variable or file-based loading because the library has no
// process of its own.
type Config struct {
	// PageSize is the byte size of a tree node. No constructor reads it:
	// per-node entry fan-out is fixed at compile time (see
	// pkg/datastructs/btree.DefaultPageSize).
	PageSize int `mapstructure:"page_size"`

	// PolicyCapacity is the maximum number of ranges the WorkingSet
	// tracks. Only meaningful for the hybrid tree.
	PolicyCapacity int `mapstructure:"policy_capacity"`
}

// Default returns the configuration used when an embedder doesn't care to
// override either option.
func Default() Config {
	return Config{
		PageSize:       4096,
		PolicyCapacity: 64,
	}
}
