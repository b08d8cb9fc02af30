package octree

// MutationRecord describes what an edit did to one slot of a Dense array. Edits return one record
// per level plus one for the leaf, root first, so that record i always refers to level i.
type MutationRecord struct {
	// Changed is false for levels the edit walked through without modifying.
	Changed bool
	// Value is the byte now stored at Slot.
	Value uint8
	// Slot is the array index of the node.
	Slot uint32
}

// ChangedOnly returns the records an external copy must apply, in order.
func ChangedOnly(records []MutationRecord) []MutationRecord {
	out := make([]MutationRecord, 0, len(records))
	for _, r := range records {
		if r.Changed {
			out = append(out, r)
		}
	}
	return out
}
