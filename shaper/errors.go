package shaper

import "errors"

var (
	errShapeTooShort       = errors.New("shaper: truncated shape encoding")
	errUnknownAID          = errors.New("shaper: unknown attribute id")
	errUnknownSID          = errors.New("shaper: unknown shape id")
	errDuplicateShape      = errors.New("shaper: shape dictionary corrupt: duplicate sid")
	errUnsupportedJSONType = errors.New("shaper: unsupported JSON value type")
	errTruncatedValue      = errors.New("shaper: truncated shaped value encoding")
)
