package shaper

import (
	"encoding/binary"
	"sort"
	"strings"
)

// attribute is a (name, aid, weight) triple. weight defines a total order
// over attributes that respects the lexicographic order of Name, used so
// two array shapes with the same attribute set compare deterministically
// regardless of the order their keys were first seen in.
type attribute struct {
	aid    uint64
	name   string
	weight int64
}

// weightStride is the gap assigned between adjacent attributes' weights
// when they are rebuilt from a sorted name list — on dictionary open, and
// whenever an insertion finds its neighbours' weights only 1 apart.
const weightStride = 100

// attributeBody is the persisted encoding of one attribute marker.
type attributeBody struct {
	aid    uint64
	weight int64
	name   string
}

func (b *attributeBody) encode() []byte {
	nameBytes := []byte(b.name)
	buf := make([]byte, 16+len(nameBytes))
	binary.LittleEndian.PutUint64(buf[0:8], b.aid)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b.weight))
	copy(buf[16:], nameBytes)
	return buf
}

// decodeAttributeBody decodes a marker body as handed out by
// Datafile.Iterate, which includes the marker's zero padding; trailing NUL
// bytes are therefore trimmed from the name.
func decodeAttributeBody(buf []byte) attributeBody {
	return attributeBody{
		aid:    binary.LittleEndian.Uint64(buf[0:8]),
		weight: int64(binary.LittleEndian.Uint64(buf[8:16])),
		name:   strings.TrimRight(string(buf[16:]), "\x00"),
	}
}

// rebalanceWeights reassigns every attribute's weight in fixed
// weightStride-unit strides, ordered lexicographically by name. Grounded
// on voc-shaper.c's weight-rebuild pass performed when the shaper's
// datafile is opened and replayed.
func rebalanceWeights(byName map[string]*attribute) {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		byName[name].weight = int64(i+1) * weightStride
	}
}

// needsRebalance reports whether the gap between two lexicographic
// neighbours' weights is too small to assign a distinct weight between
// them. A nil next neighbour (the new entry is the last name) never forces
// a rebalance; a nil prev neighbour (the new entry is the first name) does
// when the first weight is 1 or less, leaving no positive weight below it.
func needsRebalance(prev, next *attribute) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return next.weight <= 1
	}
	return next.weight-prev.weight <= 1
}

// splitWeight returns a weight strictly between prev and next, which must
// not require a rebalance (see needsRebalance). Either neighbour may be
// nil: with no next, the new weight is placed one stride beyond prev; with
// no prev, it is half of next's weight.
func splitWeight(prev, next *attribute) int64 {
	switch {
	case prev == nil && next == nil:
		return weightStride
	case prev == nil:
		return next.weight / 2
	case next == nil:
		return prev.weight + weightStride
	default:
		return prev.weight + (next.weight-prev.weight)/2
	}
}
