package wire

import (
	nschema "github.com/dreamware/nimbusdb/internal/schema"
)

// Column wire layout: name(string) + data_type(1) + 4x bool(1) +
// clustering_order(string), per spec §4.2's table.
func encodeColumn(c nschema.Column, e *encoder) {
	e.writeString(c.Name)
	e.writeUint8(uint8(c.Type))
	e.writeBool(c.IsPartitionKey)
	e.writeBool(c.IsClusteringColumn)
	e.writeBool(c.AllowsNull)
	// The fourth bool slot in spec §4.2's "4x bool(1)" covers partition
	// key / clustering column / allows-null plus a reserved flag kept for
	// wire-compatibility with a future not-null-by-default toggle; it is
	// always false on encode and ignored on decode today.
	e.writeBool(false)
	e.writeString(string(c.ClusteringOrder))
}

func decodeColumn(d *decoder) (nschema.Column, error) {
	name, err := d.readString()
	if err != nil {
		return nschema.Column{}, err
	}
	typ, err := d.readUint8()
	if err != nil {
		return nschema.Column{}, err
	}
	isPK, err := d.readBool()
	if err != nil {
		return nschema.Column{}, err
	}
	isCC, err := d.readBool()
	if err != nil {
		return nschema.Column{}, err
	}
	allowsNull, err := d.readBool()
	if err != nil {
		return nschema.Column{}, err
	}
	if _, err := d.readBool(); err != nil { // reserved
		return nschema.Column{}, err
	}
	order, err := d.readString()
	if err != nil {
		return nschema.Column{}, err
	}
	return nschema.Column{
		Name:               name,
		Type:               nschema.DataType(typ),
		IsPartitionKey:     isPK,
		IsClusteringColumn: isCC,
		AllowsNull:         allowsNull,
		ClusteringOrder:    nschema.ClusteringOrder(order),
	}, nil
}

// TableSchema wire layout: name(string) + columns-count(4) + Column*.
func encodeTable(t *nschema.Table, e *encoder) {
	e.writeString(t.Name)
	e.writeUint32(uint32(len(t.Columns)))
	for _, c := range t.Columns {
		encodeColumn(c, e)
	}
}

// columnMinSize is a Column's smallest possible encoded size: an empty
// name string(4) + data_type(1) + 4x bool(4) + an empty
// clustering_order string(4).
const columnMinSize = 4 + 1 + 4 + 4

func decodeTable(d *decoder) (*nschema.Table, error) {
	name, err := d.readString()
	if err != nil {
		return nil, err
	}
	n, err := d.readCount(columnMinSize)
	if err != nil {
		return nil, err
	}
	cols := make([]nschema.Column, 0, n)
	for i := uint32(0); i < n; i++ {
		c, err := decodeColumn(d)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return nschema.NewTable(name, cols)
}

// KeyspaceSchema wire layout: replication_class(string) +
// replication_factor(4) + tables-count(4) + TableSchema*, per spec §4.2
// ("CreateKeyspace + tables-count(4) + TableSchema*": CreateKeyspace
// expands to the keyspace's replication policy fields).
func encodeKeyspace(ks *nschema.Keyspace, e *encoder) {
	e.writeString(ks.ReplicationClass)
	e.writeUint32(ks.ReplicationFactor)
	e.writeUint32(uint32(len(ks.Tables)))
	for _, t := range ks.Tables {
		encodeTable(t, e)
	}
}

func decodeKeyspace(name string, d *decoder) (*nschema.Keyspace, error) {
	class, err := d.readString()
	if err != nil {
		return nil, err
	}
	rf, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	ks, err := nschema.NewKeyspace(name, class, rf)
	if err != nil {
		return nil, err
	}
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		t, err := decodeTable(d)
		if err != nil {
			return nil, err
		}
		ks.Tables[t.Name] = t
	}
	return ks, nil
}

// Schema wire layout: timestamp(8) + keyspaces-count(4) +
// (name-string + KeyspaceSchema)*.
func EncodeSchema(env *nschema.Envelope) []byte {
	e := &encoder{}
	encodeSchemaInto(env, e)
	return e.bytes()
}

func encodeSchemaInto(env *nschema.Envelope, e *encoder) {
	e.writeInt64(env.Timestamp)
	e.writeUint32(uint32(len(env.Keyspaces)))
	for name, ks := range env.Keyspaces {
		e.writeString(name)
		encodeKeyspace(ks, e)
	}
}

func DecodeSchema(b []byte) (*nschema.Envelope, error) {
	d := newDecoder(b)
	env, err := decodeSchemaFrom(d)
	if err != nil {
		return nil, err
	}
	return env, d.expectEmpty()
}

// keyspaceEntryMinSize is one (name, Keyspace) schema entry's smallest
// possible encoded size: an empty name string(4) + an empty
// replication_class string(4) + replication_factor(4) +
// tables-count(4).
const keyspaceEntryMinSize = 4 + 4 + 4 + 4

func decodeSchemaFrom(d *decoder) (*nschema.Envelope, error) {
	ts, err := d.readInt64()
	if err != nil {
		return nil, err
	}
	n, err := d.readCount(keyspaceEntryMinSize)
	if err != nil {
		return nil, err
	}
	env := &nschema.Envelope{Timestamp: ts, Keyspaces: make(map[string]*nschema.Keyspace, n)}
	for i := uint32(0); i < n; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		ks, err := decodeKeyspace(name, d)
		if err != nil {
			return nil, err
		}
		env.Keyspaces[name] = ks
	}
	return env, nil
}
