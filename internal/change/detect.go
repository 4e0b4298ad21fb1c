package change

import "scrapewatch/internal/scrape"

// Detect diffs two digest-indexed item sets. Added holds current items
// absent from previous, Removed the reverse. An item whose field values
// changed appears in both slices; the detector has no notion of item
// identity persisting across value changes.
func Detect(previous, current map[Digest]scrape.ItemRecord) scrape.ChangeSet {
	var cs scrape.ChangeSet
	for d, item := range current {
		if _, ok := previous[d]; !ok {
			cs.Added = append(cs.Added, item)
		}
	}
	for d, item := range previous {
		if _, ok := current[d]; !ok {
			cs.Removed = append(cs.Removed, item)
		}
	}
	return cs
}
