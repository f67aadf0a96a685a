package queryparse

import (
	"strconv"
	"strings"

	"github.com/dreamware/nimbusdb/internal/nimberr"
	"github.com/dreamware/nimbusdb/internal/query"
	"github.com/dreamware/nimbusdb/internal/schema"
)

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) peekUpper() string {
	t, ok := p.peek()
	if !ok {
		return ""
	}
	return upper(t)
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) expectKeyword(kw string) error {
	t, ok := p.next()
	if !ok || upper(t) != kw {
		return nimberr.Parsef("expected %q, got %q", kw, t.text)
	}
	return nil
}

func (p *parser) expectPunct(s string) error {
	t, ok := p.next()
	if !ok || t.text != s {
		return nimberr.Parsef("expected %q, got %q", s, t.text)
	}
	return nil
}

// Parse turns raw into a query.Query, per the minimal statement forms
// this package documents (package doc.go).
func Parse(raw string) (*query.Query, error) {
	toks := tokenize(raw)
	if len(toks) == 0 {
		return nil, nimberr.Parsef("empty query")
	}
	p := &parser{toks: toks}
	kw, _ := p.next()
	switch upper(kw) {
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "USE":
		return p.parseUse()
	case "INSERT":
		return p.parseInsert()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "SELECT":
		return p.parseSelect()
	default:
		return nil, nimberr.Parsef("unknown statement %q", kw.text)
	}
}

func splitKsTable(s string) (string, string) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

func (p *parser) parseCreate() (*query.Query, error) {
	switch p.peekUpper() {
	case "KEYSPACE":
		p.next()
		name, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("create keyspace: expected name")
		}
		if err := p.expectKeyword("WITH"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("REPLICATION"); err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		class, rf, err := p.parseReplicationMap()
		if err != nil {
			return nil, err
		}
		return &query.Query{Kind: query.KindCreateKeyspace, CreateKeyspace: &query.CreateKeyspace{
			Name: name.text, ReplicationClass: class, ReplicationFactor: rf,
		}}, nil
	case "TABLE":
		p.next()
		full, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("create table: expected ks.table")
		}
		ks, tbl := splitKsTable(full.text)
		cols, err := p.parseColumnDefs()
		if err != nil {
			return nil, err
		}
		if p.peekUpper() == "WITH" {
			p.next()
			if err := p.expectKeyword("CLUSTERING"); err != nil {
				return nil, err
			}
			if err := p.expectKeyword("ORDER"); err != nil {
				return nil, err
			}
			if err := p.expectKeyword("BY"); err != nil {
				return nil, err
			}
			if err := p.applyClusteringOrder(cols); err != nil {
				return nil, err
			}
		}
		return &query.Query{Kind: query.KindCreateTable, CreateTable: &query.CreateTable{
			Keyspace: ks, Table: tbl, Columns: cols,
		}}, nil
	default:
		return nil, nimberr.Parsef("create: expected KEYSPACE or TABLE")
	}
}

func (p *parser) parseReplicationMap() (class string, rf uint32, err error) {
	if err = p.expectPunct("{"); err != nil {
		return
	}
	for {
		key, ok := p.next()
		if !ok {
			return "", 0, nimberr.Parsef("replication map: unexpected end")
		}
		if err = p.expectPunct(":"); err != nil {
			return
		}
		val, ok := p.next()
		if !ok {
			return "", 0, nimberr.Parsef("replication map: unexpected end")
		}
		switch strings.ToLower(key.text) {
		case "class":
			class = val.text
		case "replication_factor":
			n, convErr := strconv.ParseUint(val.text, 10, 32)
			if convErr != nil {
				return "", 0, nimberr.Parsef("replication_factor: %v", convErr)
			}
			rf = uint32(n)
		}
		t, ok := p.peek()
		if !ok {
			return "", 0, nimberr.Parsef("replication map: unterminated")
		}
		if t.text == "," {
			p.next()
			continue
		}
		break
	}
	if err = p.expectPunct("}"); err != nil {
		return
	}
	if rf == 0 {
		rf = 1
	}
	return class, rf, nil
}

var columnTypes = map[string]schema.DataType{
	"INT": schema.Int, "ASCII": schema.Ascii, "BOOLEAN": schema.Boolean,
	"FLOAT": schema.Float, "DOUBLE": schema.Double, "TIMESTAMP": schema.Timestamp,
	"UUID": schema.Uuid,
}

// parseColumnDefs parses a CREATE TABLE column list: "(" col TYPE ("," col
// TYPE)* "," PRIMARY KEY "(" name ("," name)* ")" ")", tagging partition-
// and clustering-key columns from the trailing PRIMARY KEY clause.
func (p *parser) parseColumnDefs() ([]schema.Column, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []schema.Column
	var primaryKeyNames []string
	for {
		if p.peekUpper() == "PRIMARY" {
			p.next()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			for {
				name, ok := p.next()
				if !ok {
					return nil, nimberr.Parsef("primary key: unexpected end")
				}
				primaryKeyNames = append(primaryKeyNames, name.text)
				t, ok := p.peek()
				if !ok {
					return nil, nimberr.Parsef("primary key: unterminated")
				}
				if t.text == "," {
					p.next()
					continue
				}
				break
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		} else {
			name, ok := p.next()
			if !ok {
				return nil, nimberr.Parsef("column def: expected name")
			}
			typeTok, ok := p.next()
			if !ok {
				return nil, nimberr.Parsef("column def: expected type")
			}
			dt, ok := columnTypes[upper(typeTok)]
			if !ok {
				return nil, nimberr.Parsef("unknown column type %q", typeTok.text)
			}
			cols = append(cols, schema.Column{Name: name.text, Type: dt})
		}
		t, ok := p.peek()
		if !ok {
			return nil, nimberr.Parsef("create table: unterminated column list")
		}
		if t.text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if len(primaryKeyNames) == 0 {
		return nil, nimberr.Parsef("create table: missing PRIMARY KEY clause")
	}
	for i, col := range cols {
		switch {
		case col.Name == primaryKeyNames[0]:
			cols[i].IsPartitionKey = true
		case containsName(primaryKeyNames[1:], col.Name):
			cols[i].IsClusteringColumn = true
			cols[i].ClusteringOrder = schema.Asc
		default:
			cols[i].AllowsNull = true
		}
	}
	return cols, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (p *parser) applyClusteringOrder(cols []schema.Column) error {
	if err := p.expectPunct("("); err != nil {
		return err
	}
	for {
		name, ok := p.next()
		if !ok {
			return nimberr.Parsef("clustering order: expected column")
		}
		dir, ok := p.next()
		if !ok {
			return nimberr.Parsef("clustering order: expected ASC/DESC")
		}
		order := schema.Asc
		if upper(dir) == "DESC" {
			order = schema.Desc
		}
		for i, c := range cols {
			if c.Name == name.text {
				cols[i].ClusteringOrder = order
			}
		}
		t, ok := p.peek()
		if !ok {
			return nimberr.Parsef("clustering order: unterminated")
		}
		if t.text == "," {
			p.next()
			continue
		}
		break
	}
	return p.expectPunct(")")
}

func (p *parser) parseDrop() (*query.Query, error) {
	switch p.peekUpper() {
	case "KEYSPACE":
		p.next()
		name, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("drop keyspace: expected name")
		}
		return &query.Query{Kind: query.KindDropKeyspace, DropKeyspace: &query.DropKeyspace{Name: name.text}}, nil
	case "TABLE":
		p.next()
		full, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("drop table: expected ks.table")
		}
		ks, tbl := splitKsTable(full.text)
		return &query.Query{Kind: query.KindDropTable, DropTable: &query.DropTable{Keyspace: ks, Table: tbl}}, nil
	default:
		return nil, nimberr.Parsef("drop: expected KEYSPACE or TABLE")
	}
}

func (p *parser) parseUse() (*query.Query, error) {
	name, ok := p.next()
	if !ok {
		return nil, nimberr.Parsef("use: expected keyspace name")
	}
	return &query.Query{Kind: query.KindUse, Use: &query.Use{Keyspace: name.text}}, nil
}

func (p *parser) parseNameList() ([]string, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var names []string
	for {
		t, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("name list: unexpected end")
		}
		names = append(names, t.text)
		nt, ok := p.peek()
		if !ok {
			return nil, nimberr.Parsef("name list: unterminated")
		}
		if nt.text == "," {
			p.next()
			continue
		}
		break
	}
	return names, p.expectPunct(")")
}

func (p *parser) parseInsert() (*query.Query, error) {
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	full, ok := p.next()
	if !ok {
		return nil, nimberr.Parsef("insert: expected ks.table")
	}
	ks, tbl := splitKsTable(full.text)
	cols, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	vals, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	ifNotExists := false
	if p.peekUpper() == "IF" {
		p.next()
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}
	return &query.Query{Kind: query.KindInsert, Insert: &query.Insert{
		Keyspace: ks, Table: tbl, Columns: cols, Values: vals, IfNotExists: ifNotExists,
	}}, nil
}

func (p *parser) parseSetList() (map[string]string, error) {
	set := make(map[string]string)
	for {
		name, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("set: expected column")
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("set: expected value")
		}
		set[name.text] = val.text
		t, ok := p.peek()
		if ok && t.text == "," {
			p.next()
			continue
		}
		break
	}
	return set, nil
}

func (p *parser) parseUpdate() (*query.Query, error) {
	full, ok := p.next()
	if !ok {
		return nil, nimberr.Parsef("update: expected ks.table")
	}
	ks, tbl := splitKsTable(full.text)
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	set, err := p.parseSetList()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("WHERE"); err != nil {
		return nil, err
	}
	where, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	var ifPred query.Predicate
	if p.peekUpper() == "IF" {
		p.next()
		ifPred, err = p.parsePredicate()
		if err != nil {
			return nil, err
		}
	}
	return &query.Query{Kind: query.KindUpdate, Update: &query.Update{
		Keyspace: ks, Table: tbl, Set: set, Where: where, If: ifPred,
	}}, nil
}

func (p *parser) parseDelete() (*query.Query, error) {
	var cols []string
	if p.peekUpper() != "FROM" {
		names, err := p.parseNameListNoParens()
		if err != nil {
			return nil, err
		}
		cols = names
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	full, ok := p.next()
	if !ok {
		return nil, nimberr.Parsef("delete: expected ks.table")
	}
	ks, tbl := splitKsTable(full.text)
	if err := p.expectKeyword("WHERE"); err != nil {
		return nil, err
	}
	where, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	return &query.Query{Kind: query.KindDelete, Delete: &query.Delete{
		Keyspace: ks, Table: tbl, Columns: cols, Where: where,
	}}, nil
}

// parseNameListNoParens parses a bare comma-separated identifier list with
// no enclosing parens, used by DELETE's optional column list (DELETE col1,
// col2 FROM ...).
func (p *parser) parseNameListNoParens() ([]string, error) {
	var names []string
	for {
		t, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("name list: unexpected end")
		}
		names = append(names, t.text)
		nt, ok := p.peek()
		if !ok || nt.text != "," {
			break
		}
		p.next()
	}
	return names, nil
}

func (p *parser) parseSelect() (*query.Query, error) {
	var cols []string
	if p.peekUpper() == "*" {
		p.next()
	} else {
		names, err := p.parseNameListNoParens()
		if err != nil {
			return nil, err
		}
		cols = names
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	full, ok := p.next()
	if !ok {
		return nil, nimberr.Parsef("select: expected ks.table")
	}
	ks, tbl := splitKsTable(full.text)

	sel := &query.Select{Keyspace: ks, Table: tbl, Columns: cols}
	if p.peekUpper() == "WHERE" {
		p.next()
		where, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		sel.Where = where
	}
	if p.peekUpper() == "ORDER" {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		name, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("order by: expected column")
		}
		sel.OrderBy = name.text
		sel.OrderAsc = true
		if p.peekUpper() == "DESC" {
			p.next()
			sel.OrderAsc = false
		} else if p.peekUpper() == "ASC" {
			p.next()
		}
	}
	if p.peekUpper() == "LIMIT" {
		p.next()
		n, ok := p.next()
		if !ok {
			return nil, nimberr.Parsef("limit: expected number")
		}
		v, err := strconv.Atoi(n.text)
		if err != nil {
			return nil, nimberr.Parsef("limit: %v", err)
		}
		sel.Limit = v
	}
	return &query.Query{Kind: query.KindSelect, Select: sel}, nil
}

// parsePredicate parses a flat AND-joined list of "column op value"
// clauses into a query.Predicate, stopping at a statement-terminating
// keyword (IF, ORDER, LIMIT) or end of input, per original_source's
// where_cql.rs token order (column, operator, value; AND-joined).
func (p *parser) parsePredicate() (query.Predicate, error) {
	var pred query.Predicate
	for {
		col, ok := p.next()
		if !ok {
			return pred, nimberr.Parsef("where: expected column")
		}
		op, ok := p.next()
		if !ok {
			return pred, nimberr.Parsef("where: expected operator")
		}
		val, ok := p.next()
		if !ok {
			return pred, nimberr.Parsef("where: expected value")
		}
		switch op.text {
		case "=":
			if pred.Equals == nil {
				pred.Equals = make(map[string]string)
			}
			pred.Equals[col.text] = val.text
		case "<":
			if pred.Less == nil {
				pred.Less = make(map[string]string)
			}
			pred.Less[col.text] = val.text
		case ">":
			if pred.Greater == nil {
				pred.Greater = make(map[string]string)
			}
			pred.Greater[col.text] = val.text
		default:
			return pred, nimberr.Parsef("where: unsupported operator %q", op.text)
		}
		if p.peekUpper() != "AND" {
			break
		}
		p.next()
	}
	return pred, nil
}
