package pipeline

import (
	"fmt"
)

// MergeDefectError reports an attempt to merge extractions of different intents.
// It signals an internal inconsistency, not a user error.
type MergeDefectError struct {
	Stored   Intent
	Incoming Intent
}

func (e *MergeDefectError) Error() string {
	return fmt.Sprintf("cannot merge %s parameters into %s parameters", e.Incoming, e.Stored)
}

// Merge combines two extractions of the same intent. With preferIncoming a
// field present in incoming overwrites the existing one. Query filters are
// not field-additive, so the newest non-empty filter replaces the old one.
func Merge(existing, incoming Extraction, preferIncoming bool) (Extraction, error) {
	if existing == nil {
		return incoming, nil
	}
	if incoming == nil {
		return existing, nil
	}
	if existing.Intent() != incoming.Intent() {
		return nil, &MergeDefectError{Stored: existing.Intent(), Incoming: incoming.Intent()}
	}

	switch cur := existing.(type) {
	case CreateParams:
		next := incoming.(CreateParams)
		return CreateParams{Found: cur.Found.Merge(next.Found, preferIncoming)}, nil
	case ModifyParams:
		next := incoming.(ModifyParams)
		return ModifyParams{Found: cur.Found.Merge(next.Found, preferIncoming)}, nil
	case DeleteParams:
		next := incoming.(DeleteParams)
		return DeleteParams{Found: cur.Found.Merge(next.Found, preferIncoming)}, nil
	case QueryParams:
		next := incoming.(QueryParams)
		if next.Found.IsEmpty() {
			return cur, nil
		}
		return next, nil
	}
	return nil, fmt.Errorf("merge: unhandled extraction type %T", existing)
}
