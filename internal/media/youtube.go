package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"speech-compliance-go/internal/egress"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

// audio extensions in cache lookup order
var audioExts = []string{".m4a", ".webm"}

type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*ytdl.Video, error)
	GetStreamContext(ctx context.Context, video *ytdl.Video, format *ytdl.Format) (io.ReadCloser, int64, error)
}

// YouTube downloads the best audio-only stream of a video.
type YouTube struct {
	dataDir   string
	pool      *egress.Pool
	newClient func(*http.Client) videoClient
	log       *logger.Logger
}

func NewYouTube(dataDir string, pool *egress.Pool, log *logger.Logger) *YouTube {
	if log == nil {
		log = logger.New()
	}
	return &YouTube{
		dataDir: dataDir,
		pool:    pool,
		newClient: func(h *http.Client) videoClient {
			return &ytdl.Client{HTTPClient: h}
		},
		log: log.Component("media.youtube"),
	}
}

// VideoID extracts the YouTube id used as the asset id.
func VideoID(locator string) (string, error) {
	return ytdl.ExtractVideoID(locator)
}

func (y *YouTube) Acquire(ctx context.Context, item types.WorkItem) (types.AudioAsset, error) {
	id, err := VideoID(item.Locator)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("video id from %q: %w", item.Locator, err))
	}
	log := y.log.WithField("video_id", id)

	candidates := make([]string, len(audioExts))
	for i, ext := range audioExts {
		candidates[i] = filepath.Join(y.dataDir, id+ext)
	}
	if p, ok := cached(candidates...); ok {
		log.WithField("path", p).Info("audio already downloaded, skipping")
		return types.AudioAsset{ID: id, LocalPath: p}, nil
	}
	if err := ensureDir(y.dataDir); err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}

	httpClient, identity := y.httpClient()
	if identity.Proxy != nil {
		log = log.WithField("proxy", identity.Proxy.Host)
	}
	log.Info("downloading audio")

	client := y.newClient(httpClient)
	video, err := client.GetVideoContext(ctx, item.Locator)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("get video: %w", err))
	}
	format, ext, err := pickAudioFormat(video.Formats)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}

	stream, size, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("get stream: %w", err))
	}
	defer stream.Close()

	final := filepath.Join(y.dataDir, id+ext)
	tmp := tempPath(y.dataDir, id)
	file, err := os.Create(tmp)
	if err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}
	written, err := io.Copy(file, stream)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err == nil && size > 0 && written != size {
		err = fmt.Errorf("short download: %d of %d bytes", written, size)
	}
	if err != nil {
		os.Remove(tmp)
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, fmt.Errorf("download: %w", err))
	}
	if err := commit(tmp, final); err != nil {
		return types.AudioAsset{}, types.Wrap(types.ErrAcquisition, err)
	}
	log.WithField("path", final).WithField("bytes", written).Info("audio downloaded")
	return types.AudioAsset{ID: id, LocalPath: final}, nil
}

func (y *YouTube) httpClient() (*http.Client, egress.Identity) {
	if y.pool == nil {
		return http.DefaultClient, egress.Identity{}
	}
	// the youtube client sets its own User-Agent on every request
	return y.pool.OverridingClient()
}

// pickAudioFormat prefers mp4 audio and then the highest bitrate.
func pickAudioFormat(formats ytdl.FormatList) (*ytdl.Format, string, error) {
	var audio []*ytdl.Format
	for i := range formats {
		if strings.HasPrefix(formats[i].MimeType, "audio/") {
			audio = append(audio, &formats[i])
		}
	}
	if len(audio) == 0 {
		return nil, "", errors.New("no audio formats available")
	}
	sort.SliceStable(audio, func(i, j int) bool {
		mi, mj := isMP4(audio[i]), isMP4(audio[j])
		if mi != mj {
			return mi
		}
		return audio[i].Bitrate > audio[j].Bitrate
	})
	if isMP4(audio[0]) {
		return audio[0], ".m4a", nil
	}
	return audio[0], ".webm", nil
}

func isMP4(f *ytdl.Format) bool {
	return strings.Contains(f.MimeType, "mp4")
}
