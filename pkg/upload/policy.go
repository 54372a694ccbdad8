package upload

// Chunk size policy. Small files get small chunks to bound request payloads,
// very large files get bigger ones to bound the request count. Whatever the
// tier says, the chunk size grows until a single file never needs more than
// MaxChunksPerFile chunks.
const (
	DefaultChunkSize = 1 * 1024 * 1024
	MediumChunkSize  = 4 * 1024 * 1024
	LargeChunkSize   = 8 * 1024 * 1024

	mediumFileThreshold = 256 * 1024 * 1024
	largeFileThreshold  = 2 * 1024 * 1024 * 1024

	// MaxChunksPerFile upper bound on chunks for one file
	MaxChunksPerFile = 50000

	// DirectUploadThreshold files at or below this size skip chunking entirely
	DirectUploadThreshold = 5 * 1024 * 1024
)

// ChunkSizeFor the chunk size a session of the given declared size uses.
func ChunkSizeFor(fileSize int64) int64 {
	chunkSize := int64(DefaultChunkSize)
	switch {
	case fileSize >= largeFileThreshold:
		chunkSize = LargeChunkSize
	case fileSize >= mediumFileThreshold:
		chunkSize = MediumChunkSize
	}
	for countChunks(fileSize, chunkSize) > MaxChunksPerFile {
		chunkSize *= 2
	}
	return chunkSize
}

// countChunks ceil(fileSize / chunkSize)
func countChunks(fileSize, chunkSize int64) int {
	return int((fileSize + chunkSize - 1) / chunkSize)
}
