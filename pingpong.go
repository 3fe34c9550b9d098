package wondfs

import "log"

// BIT and PIT both persist across a pair of consecutive blocks (baseBlock,
// baseBlock+1) using the same ping-pong discipline, so the mechanics live
// here once instead of being duplicated in bit.go and pit.go.

func readBlockImage(cache *pageCache, blockNo int) []byte {
	buf := make([]byte, pagesPerBlk*pageSize4K)
	for i := 0; i < pagesPerBlk; i++ {
		copy(buf[i*pageSize4K:(i+1)*pageSize4K], cache.read(blockNo*pagesPerBlk+i))
	}
	return buf
}

func writeBlockImage(cache *pageCache, blockNo int, image []byte) {
	for i := 0; i < pagesPerBlk; i++ {
		cache.write(blockNo*pagesPerBlk+i, image[i*pageSize4K:(i+1)*pageSize4K])
	}
}

// pingPongSync is the steady-state path: secondary block must already be
// clean. Writes the image to the secondary, erases the primary, re-writes
// it with the same image, then erases the secondary, leaving the primary
// as the single durable copy until the next sync.
func pingPongSync(cache *pageCache, baseBlock int, image []byte) {
	secondary := baseBlock + 1
	writeBlockImage(cache, secondary, image)
	cache.erase(baseBlock)
	writeBlockImage(cache, baseBlock, image)
	cache.erase(secondary)
	if s, ok := cache.dev.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			log.Panicf("wondfs: ping-pong block %d: device sync failed: %v", baseBlock, err)
		}
	}
}

// pingPongMount reads the primary image, recovering from a crash that
// landed mid-sync: if the secondary's header is non-zero, a sync was
// interrupted after the secondary write but before the primary was fully
// re-persisted, so the secondary (not the stale primary) is authoritative.
func pingPongMount(cache *pageCache, baseBlock int) []byte {
	secondary := baseBlock + 1
	secondaryImage := readBlockImage(cache, secondary)
	if isClean(secondaryImage[:4]) {
		return readBlockImage(cache, baseBlock)
	}
	log.Printf("wondfs: ping-pong block %d: secondary is authoritative, recovering", baseBlock)
	cache.erase(baseBlock)
	writeBlockImage(cache, baseBlock, secondaryImage)
	cache.erase(secondary)
	return secondaryImage
}
