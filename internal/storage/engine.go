package storage

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/nimbusdb/internal/nimberr"
	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
)

// Engine is the per-node row store described in package doc.go. Self is
// the node's own address, recorded so Insert can sanity-check the
// replication flag it's given against which file family a row belongs
// in; Engine does not itself consult a partition.Ring — placement
// decisions are the coordinator's responsibility (spec §4.7), Engine
// only enforces that a caller's claim ("this is/isn't a replicated
// write") is internally consistent.
type Engine struct {
	root string
	self netip.Addr
	log  *logrus.Entry

	mu        sync.Mutex // protects the writerFor map only
	writerFor map[string]*sync.Mutex

	stats *TableStatsRegistry
}

// NewEngine returns an Engine rooted at root for node self.
func NewEngine(root string, self netip.Addr, log *logrus.Entry) *Engine {
	return &Engine{
		root:      root,
		self:      self,
		log:       log,
		writerFor: make(map[string]*sync.Mutex),
		stats:     NewTableStatsRegistry(),
	}
}

// Stats returns the engine's per-table operation counters.
func (e *Engine) Stats() *TableStatsRegistry { return e.stats }

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.writerFor[key]
	if !ok {
		m = &sync.Mutex{}
		e.writerFor[key] = m
	}
	return m
}

// CreateKeyspace creates the keyspace's directory and its replication
// subdirectory. Idempotent.
func (e *Engine) CreateKeyspace(keyspace string) error {
	if err := os.MkdirAll(keyspaceDir(e.root, keyspace), 0o755); err != nil {
		return nimberr.Storage("create keyspace dir", err)
	}
	if err := os.MkdirAll(replicationDir(e.root, keyspace), 0o755); err != nil {
		return nimberr.Storage("create keyspace replication dir", err)
	}
	return nil
}

// DropKeyspace removes the keyspace directory tree. Idempotent.
func (e *Engine) DropKeyspace(keyspace string) error {
	if err := os.RemoveAll(keyspaceDir(e.root, keyspace)); err != nil {
		return nimberr.Storage("drop keyspace", err)
	}
	return nil
}

func columnNames(tbl *schema.Table) []string {
	names := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateTable (re)creates the primary and replica segment/index files
// for tbl, writing just the column-name header to each. Re-creating an
// existing table discards its data. It is called by the coordinator's
// CREATE TABLE path and by the node runtime's schema-materialization
// loop for each table the adopted schema has and the previous one
// lacked; neither reads the on-disk header first.
func (e *Engine) CreateTable(keyspace string, tbl *schema.Table) error {
	if err := e.CreateKeyspace(keyspace); err != nil {
		return err
	}
	header := columnNames(tbl)
	for _, isRepl := range []bool{false, true} {
		paths := tablePaths(e.root, keyspace, tbl.Name, isRepl)
		if err := writeHeaderOnly(paths, header); err != nil {
			return nimberr.Storage("create table", err)
		}
	}
	e.stats.Table(keyspace, tbl.Name).MarkActive()
	return nil
}

func writeHeaderOnly(paths filePair, header []string) error {
	if err := atomicWriteLines(paths.seg, header, true, nil); err != nil {
		return err
	}
	return atomicWriteLines(paths.idx, header, true, nil)
}

// DropTable deletes all four files for table. A missing file is not an
// error.
func (e *Engine) DropTable(keyspace, table string) error {
	for _, isRepl := range []bool{false, true} {
		paths := tablePaths(e.root, keyspace, table, isRepl)
		for _, p := range []string{paths.seg, paths.idx} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return nimberr.Storage("drop table", err)
			}
		}
	}
	e.stats.Drop(keyspace, table)
	return nil
}

// InsertInput bundles the parameters of a single-row INSERT (spec §4.3).
type InsertInput struct {
	Keyspace      string
	Table         *schema.Table
	Columns       []string
	Values        []string
	IsReplication bool
	IfNotExists   bool
	Timestamp     int64
	// Owner is the result of partitioner.Owner(partitionKey) as computed
	// by the caller; Engine checks it against IsReplication and Self for
	// a belt-and-suspenders placement sanity check (invariants I4/I5).
	Owner netip.Addr
}

// Insert validates and applies one row write, rewriting the segment and
// index files via the temp-file/atomic-rename protocol (spec §4.3).
func (e *Engine) Insert(in InsertInput) error {
	if len(in.Values) != len(in.Columns) {
		return nimberr.Schemaf("insert: %d values for %d columns", len(in.Values), len(in.Columns))
	}
	if in.IsReplication && in.Owner == e.self {
		return nimberr.Schemaf("insert: replication=true but this node is the owner")
	}
	if !in.IsReplication && in.Owner != e.self {
		return nimberr.Schemaf("insert: replication=false but this node is not the owner")
	}

	full, err := alignRow(in.Table, in.Columns, in.Values)
	if err != nil {
		return err
	}

	key := fileKey(in.Keyspace, in.Table.Name, in.IsReplication)
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	paths := tablePaths(e.root, in.Keyspace, in.Table.Name, in.IsReplication)
	header, rows, err := readSegment(paths.seg, len(in.Table.Columns))
	if err != nil {
		return err
	}

	pkv := in.Table.PartitionKeyValues(full)
	ckv := in.Table.ClusteringKeyValues(full)
	newRow := dataRow{values: full, ts: in.Timestamp}

	runStart, runEnd := partitionRunBounds(in.Table, rows, pkv)
	matchIdx := -1
	for i := runStart; i < runEnd; i++ {
		if sameClustering(in.Table, in.Table.ClusteringKeyValues(rows[i].values), ckv) {
			matchIdx = i
			break
		}
	}

	switch {
	case matchIdx >= 0 && in.IfNotExists:
		e.stats.Table(in.Keyspace, in.Table.Name).IncInsert()
		return nil // existing row kept
	case matchIdx >= 0:
		rows[matchIdx] = newRow
	default:
		insertAt := runEnd
		for i := runStart; i < runEnd; i++ {
			if in.Table.CompareClustering(rows[i].values, full) > 0 {
				insertAt = i
				break
			}
		}
		rows = append(rows, dataRow{})
		copy(rows[insertAt+1:], rows[insertAt:])
		rows[insertAt] = newRow
	}

	if err := e.rewrite(paths, header, rows, in.Table); err != nil {
		return err
	}
	e.stats.Table(in.Keyspace, in.Table.Name).IncInsert()
	return nil
}

// alignRow maps an INSERT's caller-ordered columns/values onto the
// table's declared column order, validating type, null-ability, and the
// absence of reserved delimiter bytes in ASCII literals.
func alignRow(tbl *schema.Table, columns, values []string) ([]string, error) {
	full := make([]string, len(tbl.Columns))
	provided := make(map[string]string, len(columns))
	for i, c := range columns {
		provided[c] = values[i]
	}
	for i, col := range tbl.Columns {
		v, ok := provided[col.Name]
		if !ok {
			if !col.AllowsNull {
				return nil, nimberr.Schemaf("column %s is required", col.Name)
			}
			full[i] = ""
			continue
		}
		if col.Type == schema.Ascii && containsReservedByte(v) {
			return nil, nimberr.Schemaf("column %s: value contains a reserved delimiter", col.Name)
		}
		if err := col.Type.Validate(v); err != nil {
			return nil, nimberr.Schemaf("column %s: %v", col.Name, err)
		}
		full[i] = v
	}
	return full, nil
}

func sameClustering(tbl *schema.Table, a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, idx := range tbl.ClusteringKeyIndices() {
		if tbl.Columns[idx].Type.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// partitionRunBounds returns [start, end) of the contiguous run of rows
// sharing pkv, or (len(rows), len(rows)) if no such run exists yet — the
// caller then appends a new run at the end of the file.
func partitionRunBounds(tbl *schema.Table, rows []dataRow, pkv []string) (int, int) {
	for i, r := range rows {
		if samePartition(tbl, r.values, pkv) {
			j := i + 1
			for j < len(rows) && samePartition(tbl, rows[j].values, pkv) {
				j++
			}
			return i, j
		}
	}
	return len(rows), len(rows)
}

func samePartition(tbl *schema.Table, rowValues, pkv []string) bool {
	got := tbl.PartitionKeyValues(rowValues)
	if len(got) != len(pkv) {
		return false
	}
	for i, idx := range tbl.PartitionKeyIndices() {
		if tbl.Columns[idx].Type.Compare(got[i], pkv[i]) != 0 {
			return false
		}
	}
	return true
}

// readSegment reads a segment file's header and data rows. A missing
// file is reported as a schema error (table was never created).
func readSegment(path string, numCols int) ([]string, []dataRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nimberr.Schemaf("table segment %s does not exist", filepath.Base(path))
		}
		return nil, nil, nimberr.Storage("open segment", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var header []string
	var rows []dataRow
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			header = strings.Split(line, ",")
			first = false
			continue
		}
		if line == "" {
			continue
		}
		row, err := parseRow(line, numCols)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nimberr.Storage("scan segment", err)
	}
	return header, rows, nil
}

// rewrite writes rows (and their derived index) to paths via the
// temp-file/atomic-rename protocol: a failure during the write leaves
// the original files untouched.
func (e *Engine) rewrite(paths filePair, header []string, rows []dataRow, tbl *schema.Table) error {
	segLines := make([]string, 0, len(rows))
	var entries []indexEntry
	var offset int64
	var curHead string
	var curStart int64
	haveRun := false
	for _, r := range rows {
		line := serializeRow(r)
		segLines = append(segLines, line)
		head := partitionHeadOf(tbl.PartitionKeyValues(r.values))
		if !haveRun || head != curHead {
			if haveRun {
				entries = append(entries, indexEntry{partitionHead: curHead, start: curStart, end: offset})
			}
			curHead = head
			curStart = offset
			haveRun = true
		}
		offset += int64(len(line)) + 1 // + newline
	}
	if haveRun {
		entries = append(entries, indexEntry{partitionHead: curHead, start: curStart, end: offset})
	}

	if err := atomicWriteLines(paths.seg, header, false, segLines); err != nil {
		return nimberr.Storage("rewrite segment", err)
	}
	idxLines := make([]string, len(entries))
	for i, ent := range entries {
		idxLines[i] = serializeIndexEntry(ent)
	}
	if err := atomicWriteLines(paths.idx, header, false, idxLines); err != nil {
		return nimberr.Storage("rewrite index", err)
	}
	return nil
}

// atomicWriteLines writes a header line followed by body lines to path
// via a temp file in the same directory, then renames over path. The
// headerOnly flag, set only by writeHeaderOnly, writes the header line
// alone and ignores body.
func atomicWriteLines(path string, header []string, headerOnly bool, body []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	fmt.Fprintln(w, strings.Join(header, ","))
	if !headerOnly {
		for _, line := range body {
			fmt.Fprintln(w, line)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// loadIndex reads a table's index file, if present; a missing index is
// treated as empty (Select falls back to a full scan).
func loadIndex(path string) ([]indexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nimberr.Storage("open index", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []indexEntry
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parseIndexEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, nimberr.Storage("scan index", err)
	}
	return entries, nil
}

// UpdateInput bundles the parameters of an UPDATE (spec §4.3): SET must
// not name a primary-key column, and Where must equate every partition-
// and clustering-key column (no range updates). A non-matching row is a
// silent no-op — UPDATE is never an upsert.
type UpdateInput struct {
	Keyspace      string
	Table         *schema.Table
	Set           map[string]string
	Where         query.Predicate
	IsReplication bool
	Timestamp     int64
}

// Update applies an UPDATE. It returns a schema error if Set names a
// primary-key column or Where doesn't fully equate the clustering key.
func (e *Engine) Update(in UpdateInput) error {
	tbl := in.Table
	for col, v := range in.Set {
		idx := tbl.ColumnIndex(col)
		if idx < 0 {
			return nimberr.Schemaf("update: unknown column %s", col)
		}
		if tbl.Columns[idx].IsPartitionKey || tbl.Columns[idx].IsClusteringColumn {
			return nimberr.Schemaf("update: cannot SET primary-key column %s", col)
		}
		if tbl.Columns[idx].Type == schema.Ascii && containsReservedByte(v) {
			return nimberr.Schemaf("update: column %s: value contains a reserved delimiter", col)
		}
	}
	if !in.Where.HasPartitionKeyEquality(tbl) {
		return nimberr.Schemaf("update: WHERE must equate the full partition key")
	}
	for _, idx := range tbl.ClusteringKeyIndices() {
		if _, ok := in.Where.Equals[tbl.Columns[idx].Name]; !ok {
			return nimberr.Schemaf("update: WHERE must equate clustering column %s (no range updates)", tbl.Columns[idx].Name)
		}
	}

	key := fileKey(in.Keyspace, tbl.Name, in.IsReplication)
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	paths := tablePaths(e.root, in.Keyspace, tbl.Name, in.IsReplication)
	header, rows, err := readSegment(paths.seg, len(tbl.Columns))
	if err != nil {
		return err
	}

	pkv := in.Where.PartitionKeyValues(tbl)
	runStart, runEnd := partitionRunBounds(tbl, rows, pkv)
	changed := false
	for i := runStart; i < runEnd; i++ {
		if !in.Where.Matches(tbl, rows[i].values) {
			continue
		}
		newValues := append([]string(nil), rows[i].values...)
		for col, v := range in.Set {
			newValues[tbl.ColumnIndex(col)] = v
		}
		rows[i] = dataRow{values: newValues, ts: in.Timestamp}
		changed = true
	}
	if !changed {
		e.stats.Table(in.Keyspace, tbl.Name).IncUpdate()
		return nil
	}
	if err := e.rewrite(paths, header, rows, tbl); err != nil {
		return err
	}
	e.stats.Table(in.Keyspace, tbl.Name).IncUpdate()
	return nil
}

// DeleteInput bundles the parameters of a DELETE (spec §4.3). A nil
// Columns deletes whole matching rows; non-nil clears those columns to
// empty strings on matching rows instead.
type DeleteInput struct {
	Keyspace      string
	Table         *schema.Table
	Columns       []string
	Where         query.Predicate
	IsReplication bool
	Timestamp     int64
}

// Delete applies a DELETE. Where must at minimum equate the full
// partition key; a non-matching predicate deletes nothing.
func (e *Engine) Delete(in DeleteInput) error {
	tbl := in.Table
	if !in.Where.HasPartitionKeyEquality(tbl) {
		return nimberr.Schemaf("delete: WHERE must equate the full partition key")
	}
	for _, col := range in.Columns {
		idx := tbl.ColumnIndex(col)
		if idx < 0 {
			return nimberr.Schemaf("delete: unknown column %s", col)
		}
		if tbl.Columns[idx].IsPartitionKey || tbl.Columns[idx].IsClusteringColumn {
			return nimberr.Schemaf("delete: cannot clear primary-key column %s", col)
		}
	}

	key := fileKey(in.Keyspace, tbl.Name, in.IsReplication)
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	paths := tablePaths(e.root, in.Keyspace, tbl.Name, in.IsReplication)
	header, rows, err := readSegment(paths.seg, len(tbl.Columns))
	if err != nil {
		return err
	}

	pkv := in.Where.PartitionKeyValues(tbl)
	runStart, runEnd := partitionRunBounds(tbl, rows, pkv)

	if in.Columns == nil {
		kept := rows[:runStart:runStart]
		for i := runStart; i < runEnd; i++ {
			if !in.Where.Matches(tbl, rows[i].values) {
				kept = append(kept, rows[i])
			}
		}
		kept = append(kept, rows[runEnd:]...)
		rows = kept
	} else {
		for i := runStart; i < runEnd; i++ {
			if !in.Where.Matches(tbl, rows[i].values) {
				continue
			}
			newValues := append([]string(nil), rows[i].values...)
			for _, col := range in.Columns {
				newValues[tbl.ColumnIndex(col)] = ""
			}
			rows[i] = dataRow{values: newValues, ts: in.Timestamp}
		}
	}

	if err := e.rewrite(paths, header, rows, tbl); err != nil {
		return err
	}
	e.stats.Table(in.Keyspace, tbl.Name).IncDelete()
	return nil
}

// SelectInput bundles the parameters of a SELECT (spec §4.3).
type SelectInput struct {
	Keyspace      string
	Table         *schema.Table
	Columns       []string // projected columns; empty means all
	Where         query.Predicate
	OrderBy       string
	OrderAsc      bool
	Limit         int
	IsReplication bool
}

// SelectRow is one projected result row.
type SelectRow struct {
	Values    map[string]string
	Timestamp int64
}

// Select applies a SELECT against this node's local copy (primary or
// replica, per IsReplication) of the table. If Where equates the full
// partition key, the table's sparse index is used to seek directly to
// that partition's byte run; otherwise (or if the index is missing) the
// whole segment is scanned.
func (e *Engine) Select(in SelectInput) ([]SelectRow, error) {
	tbl := in.Table
	paths := tablePaths(e.root, in.Keyspace, tbl.Name, in.IsReplication)

	var rows []dataRow
	if in.Where.HasPartitionKeyEquality(tbl) {
		entries, err := loadIndex(paths.idx)
		if err != nil {
			return nil, err
		}
		head := partitionHeadOf(in.Where.PartitionKeyValues(tbl))
		if ent, ok := findEntry(entries, head); ok {
			r, err := readRange(paths.seg, len(tbl.Columns), ent.start, ent.end)
			if err != nil {
				return nil, err
			}
			rows = r
		}
	} else {
		_, all, err := readSegment(paths.seg, len(tbl.Columns))
		if err != nil {
			return nil, err
		}
		rows = all
	}

	var matched []dataRow
	for _, r := range rows {
		if in.Where.Matches(tbl, r.values) {
			matched = append(matched, r)
		}
	}

	if in.OrderBy != "" {
		idx := tbl.ColumnIndex(in.OrderBy)
		if idx < 0 {
			return nil, nimberr.Schemaf("select: unknown ORDER BY column %s", in.OrderBy)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			c := tbl.Columns[idx].Type.Compare(matched[i].values[idx], matched[j].values[idx])
			if in.OrderAsc {
				return c < 0
			}
			return c > 0
		})
	}

	cols := in.Columns
	if len(cols) == 0 {
		cols = columnNames(tbl)
	}

	out := make([]SelectRow, 0, len(matched))
	for _, r := range matched {
		if in.Limit > 0 && len(out) >= in.Limit {
			break
		}
		vals := make(map[string]string, len(cols))
		for _, c := range cols {
			idx := tbl.ColumnIndex(c)
			if idx < 0 {
				return nil, nimberr.Schemaf("select: unknown column %s", c)
			}
			vals[c] = r.values[idx]
		}
		out = append(out, SelectRow{Values: vals, Timestamp: r.ts})
	}
	e.stats.Table(in.Keyspace, tbl.Name).IncSelect()
	return out, nil
}

// readRange reads the data rows within byte range [start, end) of a
// segment file's body (the header line is excluded from the range, per
// the offsets rewrite computes).
func readRange(path string, numCols int, start, end int64) ([]dataRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nimberr.Storage("open segment for ranged read", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	headerLine, err := br.ReadString('\n')
	if err != nil {
		return nil, nimberr.Storage("read segment header", err)
	}
	if _, err := f.Seek(int64(len(headerLine))+start, 0); err != nil {
		return nil, nimberr.Storage("seek segment", err)
	}

	limited := io.LimitReader(f, end-start)
	scanner := bufio.NewScanner(limited)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var rows []dataRow
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		row, err := parseRow(line, numCols)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nimberr.Storage("scan ranged segment", err)
	}
	return rows, nil
}

// RelocatingRow is one row a redistribution plan says must move to a new
// owner or be dropped from replication because the owning node changed
// (spec §9): the original source deleted a row from its local store as
// soon as it computed that the row belonged elsewhere, before the new
// owner had acknowledged storing it — a ring change racing with a crash
// could lose the row entirely. PlanRedistribution only plans; callers
// (internal/nodeops) must apply the move, wait for the new owner's
// acknowledgement, and only then call Engine.Delete/DropTable-equivalent
// cleanup for the rows that moved.
type RelocatingRow struct {
	Keyspace  string
	Table     string
	Values    []string
	Timestamp int64
	NewOwner  netip.Addr
}

// PlanRedistribution scans every row this node stores (primary and
// replica) for keyspace/table and reports which ones now belong
// elsewhere according to replicas, a function mapping a partition key's
// bytes to its current full replica set (the primary owner at index 0
// followed by its successors, per spec §4.1's replica-set construction).
//
// The primary file (isReplication == false) and the replica file
// (isReplication == true) are judged by different rules: a primary row
// relocates when this node is no longer replicas(pk)[0]; a replica row
// relocates — really, is handed to the new primary and dropped locally
// — when this node is no longer anywhere in replicas(pk) at all. Using
// the primary-ownership check for both would flag essentially every
// replica row, since a replica's owner is never itself.
func (e *Engine) PlanRedistribution(keyspace string, tbl *schema.Table, isReplication bool, replicas func([]byte) []netip.Addr) ([]RelocatingRow, error) {
	paths := tablePaths(e.root, keyspace, tbl.Name, isReplication)
	_, rows, err := readSegment(paths.seg, len(tbl.Columns))
	if err != nil {
		if nimberr.HasKind(err, nimberr.KindSchema) {
			return nil, nil // table not materialized yet on this node
		}
		return nil, err
	}
	var moves []RelocatingRow
	for _, r := range rows {
		set := replicas(tbl.PartitionKeyBytes(r.values))
		if len(set) == 0 {
			continue
		}

		var newOwner netip.Addr
		if isReplication {
			if containsAddr(set, e.self) {
				continue // still a replica for this key, nothing to do
			}
			newOwner = set[0] // hand it to the current primary, then drop locally
		} else {
			if set[0] == e.self {
				continue // still the primary owner
			}
			newOwner = set[0]
		}

		moves = append(moves, RelocatingRow{
			Keyspace:  keyspace,
			Table:     tbl.Name,
			Values:    append([]string(nil), r.values...),
			Timestamp: r.ts,
			NewOwner:  newOwner,
		})
	}
	return moves, nil
}

func containsAddr(addrs []netip.Addr, target netip.Addr) bool {
	for _, a := range addrs {
		if a == target {
			return true
		}
	}
	return false
}
