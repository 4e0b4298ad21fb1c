// Package change fingerprints extracted items and diffs fingerprint sets
// between extraction runs.
package change

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"scrapewatch/internal/scrape"
)

// Digest is a fixed-size content fingerprint, stable across runs and
// processes.
type Digest [sha256.Size]byte

// Hex returns the digest as a lowercase hex string.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// ItemDigest fingerprints a single item. Field names are sorted and values
// rendered in type-tagged canonical form, so equality depends only on item
// content, never on extraction order or value formatting.
func ItemDigest(item scrape.ItemRecord) Digest {
	parts := make([]string, 0, len(item.Fields))
	for _, f := range item.Fields {
		parts = append(parts, f.Name+"="+f.Value.Canonical())
	}
	sort.Strings(parts)
	return sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
}

// SetDigest fingerprints a whole item set, insensitive to item order.
// Exact duplicate items collapse before hashing.
func SetDigest(items []scrape.ItemRecord) Digest {
	seen := make(map[Digest]struct{}, len(items))
	digests := make([]Digest, 0, len(items))
	for _, item := range items {
		d := ItemDigest(item)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool {
		return bytes.Compare(digests[i][:], digests[j][:]) < 0
	})
	h := sha256.New()
	for _, d := range digests {
		h.Write(d[:])
	}
	var out Digest
	h.Sum(out[:0])
	return out
}

// ContentDigest fingerprints raw fetched content, used to short-circuit
// processing when a source returns byte-identical pages.
func ContentDigest(content []byte) Digest {
	return sha256.Sum256(content)
}

// DigestItems indexes items by their digest. Items with identical full
// field-value tuples collapse into one entry; there is no designated key
// field, so exact duplicates carry no extra information.
func DigestItems(items []scrape.ItemRecord) map[Digest]scrape.ItemRecord {
	out := make(map[Digest]scrape.ItemRecord, len(items))
	for _, item := range items {
		out[ItemDigest(item)] = item
	}
	return out
}
