package wondfs

// Option configures a Superblock before mount. Unset options fall back to
// the defaults spec.md §2-§4 describe for a 32-block device.
type Option func(sb *Superblock) error

// WithBlockSize overrides the device's total block count. blockNum is the
// total number of blocks on the device; the main area grows or shrinks by
// the difference from the current count, the other regions keep their
// sizes. pageSize must be 4096 to match the on-device record layouts in §6
// (BIT/PIT/SSTable framing assumes it).
func WithBlockSize(blockNum int, pageSize int) Option {
	return func(sb *Superblock) error {
		if pageSize != pageSize4K {
			return ErrInvalidParam
		}
		mainBlocks := sb.mainBlocks + blockNum - sb.blockNum
		if mainBlocks <= 0 {
			return ErrInvalidParam
		}
		sb.mainBlocks = mainBlocks
		sb.blockNum = blockNum
		sb.pageSize = pageSize
		return nil
	}
}

// WithMemtableThreshold sets the byte threshold at which the LSM memtable
// flushes to a new SSTable file. Must leave room for the 50-byte header/EOF
// reservation the memtable's can_put check assumes.
func WithMemtableThreshold(threshold int) Option {
	return func(sb *Superblock) error {
		if threshold <= 50 {
			return ErrInvalidParam
		}
		sb.memtableThreshold = threshold
		return nil
	}
}

// WithInodeTableCapacity overrides the fixed number of concurrently cached
// inode slots (spec.md default: 30).
func WithInodeTableCapacity(n int) Option {
	return func(sb *Superblock) error {
		if n <= 0 {
			return ErrInvalidParam
		}
		sb.inodeTableCap = n
		return nil
	}
}

// WithCacheCapacity overrides the buffer cache's page capacity (spec.md
// default: 1024).
func WithCacheCapacity(n int) Option {
	return func(sb *Superblock) error {
		if n <= 0 {
			return ErrInvalidParam
		}
		sb.cacheCap = n
		return nil
	}
}

// WithGCStrategy selects which of the three (intentionally degenerate,
// see gc.go) victim-selection strategies new_gc_event uses.
func WithGCStrategy(s GCStrategy) Option {
	return func(sb *Superblock) error {
		sb.gcStrategy = s
		return nil
	}
}
