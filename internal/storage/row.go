package storage

import (
	"strconv"
	"strings"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// dataRow is one parsed segment line: column values in table-declared
// order, plus the write timestamp.
type dataRow struct {
	values []string
	ts     int64
}

// serializeRow renders r as a segment line (without trailing newline):
// `v1,v2,...,vN;ts`. Column values are never escaped — nimbusdb's CSV-ish
// segment format, inherited from the system this spec distills, does not
// support values containing ',' or ';'; the column type validation in
// Insert/Update rejects ASCII literals containing either byte.
func serializeRow(r dataRow) string {
	return strings.Join(r.values, ",") + ";" + strconv.FormatInt(r.ts, 10)
}

func parseRow(line string, numCols int) (dataRow, error) {
	semi := strings.LastIndexByte(line, ';')
	if semi < 0 {
		return dataRow{}, nimberr.Storage("segment line missing timestamp separator", nil)
	}
	valuesPart, tsPart := line[:semi], line[semi+1:]
	values := strings.Split(valuesPart, ",")
	if len(values) != numCols {
		return dataRow{}, nimberr.Storage("segment line has wrong column count", nil)
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return dataRow{}, nimberr.Storage("segment line has invalid timestamp", err)
	}
	return dataRow{values: values, ts: ts}, nil
}

// containsReservedByte reports whether s contains a segment-format
// delimiter and therefore cannot be stored as an ASCII literal.
func containsReservedByte(s string) bool {
	return strings.ContainsAny(s, ",;")
}
