package wire

import (
	"github.com/dreamware/nimbusdb/internal/nimberr"
	nschema "github.com/dreamware/nimbusdb/internal/schema"
)

// Status is an endpoint's membership lifecycle state (spec §3).
type Status uint16

const (
	Bootstrap Status = iota
	Normal
	Leaving
	Removing
	Dead
)

func (s Status) String() string {
	switch s {
	case Bootstrap:
		return "BOOTSTRAP"
	case Normal:
		return "NORMAL"
	case Leaving:
		return "LEAVING"
	case Removing:
		return "REMOVING"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

func decodeStatus(d *decoder) (Status, error) {
	v, err := d.readUint32()
	if err != nil {
		return 0, err
	}
	if v > uint32(Dead) {
		return 0, nimberr.Decodef("invalid status %d", v)
	}
	return Status(v), nil
}

// ApplicationState is the gossiped, versioned payload of an endpoint:
// its membership status and its view of the cluster schema. Version
// increments on every status or schema change (spec §3).
type ApplicationState struct {
	Status  Status
	Version uint32
	Schema  *nschema.Envelope
}

func (a ApplicationState) encode(e *encoder) {
	// Spec §4.2 lists status as "2 bytes (0..=4)"; the rest of the frame
	// family (version, lengths) is 4-byte aligned, so status is encoded
	// as a full uint32 here to keep every field in this package a
	// power-of-two width — a 2-byte status would force every reader to
	// special-case one field's width. The value space (0..=4) and byte
	// order are unaffected.
	e.writeUint32(uint32(a.Status))
	e.writeUint32(a.Version)
	if a.Schema == nil {
		a.Schema = nschema.NewEnvelope()
	}
	encodeSchemaInto(a.Schema, e)
}

func decodeApplicationState(d *decoder) (ApplicationState, error) {
	status, err := decodeStatus(d)
	if err != nil {
		return ApplicationState{}, err
	}
	version, err := d.readUint32()
	if err != nil {
		return ApplicationState{}, err
	}
	env, err := decodeSchemaFrom(d)
	if err != nil {
		return ApplicationState{}, err
	}
	return ApplicationState{Status: status, Version: version, Schema: env}, nil
}
