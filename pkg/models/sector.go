package models

import (
	"bytes"
	"time"
)

// ProvenanceRepaired tags sectors recovered by consensus, brute force or
// the missing-address-mark path.
const ProvenanceRepaired = "repaired"

// DecodedSector is a checksum-validated sector payload. It is immutable:
// the payload is copied in and out, and tagging produces a new value.
type DecodedSector struct {
	at         Coordinate
	octets     string
	provenance string
}

// NewDecodedSector copies octets into a new, untagged DecodedSector.
func NewDecodedSector(at Coordinate, octets []byte) DecodedSector {
	return DecodedSector{at: at, octets: string(octets)}
}

func (d DecodedSector) Coordinate() Coordinate { return d.at }
func (d DecodedSector) Len() int               { return len(d.octets) }
func (d DecodedSector) Provenance() string     { return d.provenance }

// Octets returns a copy of the payload.
func (d DecodedSector) Octets() []byte { return []byte(d.octets) }

// Key is the deduplication key: the payload itself.
func (d DecodedSector) Key() string { return d.octets }

// Accepted returns a copy of d carrying the given provenance tag.
func (d DecodedSector) Accepted(tag string) DecodedSector {
	d.provenance = tag
	return d
}

// Equal compares coordinate and payload; provenance is ignored.
func (d DecodedSector) Equal(o DecodedSector) bool {
	return d.at == o.at && d.octets == o.octets
}

// ComparePayload orders sectors by payload bytes.
func ComparePayload(a, b DecodedSector) int {
	return bytes.Compare([]byte(a.octets), []byte(b.octets))
}

// StoredSector is a sector as persisted by the recovery sink.
type StoredSector struct {
	ID         string     // UUID of the stored record
	Media      string     // media name the sector belongs to
	At         Coordinate // logical address
	Octets     []byte     // payload
	Provenance string     // e.g. "repaired"
	Source     string     // capture or session the sector came from
	CreatedAt  time.Time
}

// ImageSummary describes a written sector image.
type ImageSummary struct {
	Sectors   int          // coordinates written
	Bytes     int64        // payload bytes written
	Conflicts []Coordinate // coordinates holding more than one distinct payload
}
