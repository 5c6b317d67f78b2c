package skiplist

import "errors"

// ErrUniqueViolation is returned by Unique.Insert when the inserted
// element compares equal (by ElementElementCompare) to one already
// present and overwrite was not requested.
var ErrUniqueViolation = errors.New("skiplist: unique violation")
