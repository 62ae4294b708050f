// Package media turns work items into local audio files. Every source derives
// the asset id from the locator alone, so a re-run finds an earlier download
// under the same path and skips the network.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speech-compliance-go/internal/types"
)

// Source acquires the audio for one work item.
type Source interface {
	Acquire(ctx context.Context, item types.WorkItem) (types.AudioAsset, error)
}

// Router dispatches by item kind.
type Router struct {
	sources map[types.Kind]Source
}

func NewRouter(video, audio Source) *Router {
	r := &Router{sources: map[types.Kind]Source{}}
	if video != nil {
		r.sources[types.KindVideo] = video
	}
	if audio != nil {
		r.sources[types.KindAudio] = audio
	}
	return r
}

func (r *Router) Acquire(ctx context.Context, item types.WorkItem) (types.AudioAsset, error) {
	src, ok := r.sources[item.Kind]
	if !ok {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("no media source for kind %q", item.Kind))
	}
	return src.Acquire(ctx, item)
}

// cached returns the first existing non-empty file among the candidates.
func cached(candidates ...string) (string, bool) {
	for _, p := range candidates {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() && st.Size() > 0 {
			return p, true
		}
	}
	return "", false
}

// Remove deletes a local asset; a missing file is not an error.
func Remove(asset types.AudioAsset) error {
	if asset.LocalPath == "" {
		return nil
	}
	if err := os.Remove(asset.LocalPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func sanitizeID(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(strings.TrimSpace(name))
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// commit moves a finished temp file into place so a partial download never
// looks like a cache hit.
func commit(tmp, final string) error {
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func tempPath(dir, id string) string {
	return filepath.Join(dir, "."+id+".part")
}
