package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Avinash-1994/Nexxo-sub001/cas"
	"github.com/Avinash-1994/Nexxo-sub001/store"
)

// latestKey holds the input hash of the most recently recorded fingerprint.
var latestKey = store.FingerprintKey("latest", "input")

// Record writes one input key per source file, the fingerprint itself under
// its input hash, and marks it as the latest.
func Record(ctx context.Context, st store.ArtifactStore, fp *InputFingerprint) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("marshaling fingerprint: %w", err)
	}

	entries := make([]store.Entry, 0, len(fp.SourceFiles)+2)
	for _, f := range fp.SourceFiles {
		entries = append(entries, store.Entry{
			Key:   store.InputKey(f.Path, f.Hash),
			Value: []byte(f.Hash),
		})
	}
	entries = append(entries,
		store.Entry{Key: store.FingerprintKey("input", fp.InputHash), Value: data},
		store.Entry{Key: latestKey, Value: []byte(fp.InputHash)},
	)

	if err := st.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("recording fingerprint: %w", err)
	}
	return nil
}

// Latest returns the most recently recorded input fingerprint, if any.
func Latest(ctx context.Context, st store.ArtifactStore) (*InputFingerprint, bool, error) {
	hash, ok, err := st.Get(ctx, latestKey)
	if err != nil || !ok {
		return nil, false, err
	}
	return Load(ctx, st, string(hash))
}

// Load returns the input fingerprint recorded under hash. A hash that is not
// a digest is an error.
func Load(ctx context.Context, st store.ArtifactStore, hash string) (*InputFingerprint, bool, error) {
	if _, err := cas.ParseDigest(hash); err != nil {
		return nil, false, fmt.Errorf("loading fingerprint: %w", err)
	}
	data, ok, err := st.Get(ctx, store.FingerprintKey("input", hash))
	if err != nil || !ok {
		return nil, false, err
	}
	var fp InputFingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, false, fmt.Errorf("decoding fingerprint %s: %w", hash, err)
	}
	return &fp, true, nil
}

// Unchanged reports which source files already have an input key in st.
func Unchanged(ctx context.Context, st store.ArtifactStore, fp *InputFingerprint) ([]string, error) {
	var out []string
	for _, f := range fp.SourceFiles {
		_, ok, err := st.Get(ctx, store.InputKey(f.Path, f.Hash))
		if err != nil {
			return nil, fmt.Errorf("looking up %s: %w", f.Path, err)
		}
		if ok {
			out = append(out, f.Path)
		}
	}
	return out, nil
}
