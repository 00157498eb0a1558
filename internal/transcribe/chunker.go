package transcribe

import "iter"

// DefaultChunkSize is the default chunk stride. Chunks after the first also
// carry Overlap bytes, so one inference payload can reach 1.1x this size.
const DefaultChunkSize = 1 << 20

// Chunk is a contiguous slice of the source audio.
type Chunk struct {
	Index  int
	Offset int // byte offset of Data within the source buffer
	Data   []byte
}

// Overlap returns the leading overlap applied to every chunk after the first:
// 10% of the limit, rounded down.
func Overlap(limit int) int {
	return limit / 10
}

// ChunkCount returns how many chunks SplitChunks yields for n bytes.
func ChunkCount(n, limit int) int {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	if n <= limit {
		return 1
	}
	return (n + limit - 1) / limit
}

// SplitChunks lazily yields the chunks of data. Buffers no larger than limit
// come back as a single chunk. Larger buffers are cut every limit bytes, and
// each chunk after the first starts Overlap(limit) bytes early so a word at a
// boundary is less likely to be cut in half. Overlapped words are not
// deduplicated downstream.
func SplitChunks(data []byte, limit int) iter.Seq[Chunk] {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	return func(yield func(Chunk) bool) {
		if len(data) <= limit {
			yield(Chunk{Index: 0, Offset: 0, Data: data})
			return
		}

		overlap := Overlap(limit)
		n := ChunkCount(len(data), limit)
		for i := 0; i < n; i++ {
			start := max(0, i*limit-overlap)
			end := min((i+1)*limit, len(data))
			if !yield(Chunk{Index: i, Offset: start, Data: data[start:end:end]}) {
				return
			}
		}
	}
}
