package primary

import (
	"vocbase/datafile"
	"vocbase/ids"
)

// Mptr is the in-memory locator for one document's latest on-disk marker
// (§3.5). It is the value type of the primary hash index: key → *Mptr.
type Mptr struct {
	Key string

	RevisionCurrent   ids.Tick // rid of the marker DataPtr currently points at
	RevisionValidFrom ids.Tick // rid at which this document first existed
	RevisionValidTo   ids.Tick // 0 while live; Delete drops the Mptr from the index without setting it

	MarkerType datafile.MarkerType // TypeDocument or TypeEdge

	DataPtr    []byte   // the marker's body (revision, shape id, key, shaped value), inside a mapped datafile
	DatafileID ids.Tick // fid of the datafile DataPtr points into
}

// Live reports whether this Mptr still represents an undeleted document.
func (m *Mptr) Live() bool { return m.RevisionValidTo == 0 }
