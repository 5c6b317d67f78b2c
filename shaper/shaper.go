package shaper

import (
	"vocbase/datafile"
	"vocbase/ids"
)

// Shaper is the process-wide, per-database registry described by §4.2: a
// thin facade over Dictionary that documents, collections and the accessor
// cache actually talk to. Keeping Dictionary and Shaper separate lets the
// dictionary's own tests exercise FindOrInsertAttribute/FindOrInsertShape
// directly without dragging in JSON conversion.
type Shaper struct {
	dict  *Dictionary
	cache *AccessorCache
}

// Open scans df (the shaper's own dedicated datafile, conventionally
// collection-<cid>/SHAPES/) and returns a Shaper backed by its dictionary,
// seeding next_aid/next_sid from whatever attribute and shape markers are
// already there.
func Open(df *datafile.Datafile, ig *ids.Generator) (*Shaper, error) {
	dict, err := OpenDictionary(df, ig)
	if err != nil {
		return nil, err
	}
	return &Shaper{dict: dict, cache: NewAccessorCache(0)}, nil
}

// Dictionary exposes the underlying attribute/shape dictionary for callers
// (the accessor cache, secondary indexes) that need aid/sid lookups
// without going through JSON conversion.
func (s *Shaper) Dictionary() *Dictionary {
	return s.dict
}
