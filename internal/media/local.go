package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

// Local stages already-downloaded audio files into the data directory. The
// staged copy is the asset, so cleanup never touches the caller's original.
type Local struct {
	dataDir string
	log     *logger.Logger
}

func NewLocal(dataDir string, log *logger.Logger) *Local {
	if log == nil {
		log = logger.New()
	}
	return &Local{dataDir: dataDir, log: log.Component("media.local")}
}

// LocalName is the file's base name without extension. Links use it.
func LocalName(path string) string {
	base := filepath.Base(path)
	return sanitizeID(strings.TrimSuffix(base, filepath.Ext(base)))
}

// LocalID is LocalName plus a short hash of the absolute path, so files with
// the same name in different directories stage to different assets.
func LocalID(path string) string {
	name := LocalName(path)
	if name == "" || name == "." {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	sum := sha256.Sum256([]byte(abs))
	return name + "-" + hex.EncodeToString(sum[:4])
}

func (l *Local) Acquire(ctx context.Context, item types.WorkItem) (types.AudioAsset, error) {
	id := LocalID(item.Locator)
	if id == "" {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("cannot derive id from %q", item.Locator))
	}
	final := filepath.Join(l.dataDir, id+strings.ToLower(filepath.Ext(item.Locator)))
	log := l.log.WithField("id", id).WithField("path", final)

	if p, ok := cached(final); ok {
		log.Info("audio already staged, skipping copy")
		return types.AudioAsset{ID: id, LocalPath: p}, nil
	}
	if err := ctx.Err(); err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}
	if err := ensureDir(l.dataDir); err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}

	src, err := os.Open(item.Locator)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("open audio: %w", err))
	}
	defer src.Close()

	tmp := tempPath(l.dataDir, id)
	dst, err := os.Create(tmp)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("stage audio: %w", err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}
	if err := commit(tmp, final); err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}
	log.Info("audio staged")
	return types.AudioAsset{ID: id, LocalPath: final}, nil
}
