package storage

import (
	"strconv"
	"strings"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// indexEntry is one sparse-index line: the partition key this run
// belongs to (rendered as its NUL-joined key-column values — the
// "head" the spec's index format keys each partition run by, chosen
// over the first clustering value alone since SELECT must seek by
// partition key, not by an arbitrary clustering value that says nothing
// about which partition it belongs to; see DESIGN.md), and the run's
// half-open byte range within the segment file.
type indexEntry struct {
	partitionHead string
	start, end    int64
}

func serializeIndexEntry(e indexEntry) string {
	return strings.Join([]string{e.partitionHead, strconv.FormatInt(e.start, 10), strconv.FormatInt(e.end, 10)}, ",")
}

func parseIndexEntry(line string) (indexEntry, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return indexEntry{}, nimberr.Storage("index line has wrong field count", nil)
	}
	start, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return indexEntry{}, nimberr.Storage("index line has invalid start offset", err)
	}
	end, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return indexEntry{}, nimberr.Storage("index line has invalid end offset", err)
	}
	return indexEntry{partitionHead: parts[0], start: start, end: end}, nil
}

func partitionHeadOf(partitionKeyValues []string) string {
	return strings.Join(partitionKeyValues, "\x00")
}

// findEntry returns the index entry for the given partition key, if any.
func findEntry(entries []indexEntry, head string) (indexEntry, bool) {
	for _, e := range entries {
		if e.partitionHead == head {
			return e, true
		}
	}
	return indexEntry{}, false
}
