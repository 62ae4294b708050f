package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"speech-compliance-go/internal/egress"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeVideoClient struct {
	videoCalls  int
	streamCalls int
	formats     ytdl.FormatList
	payload     []byte
	err         error
}

func (f *fakeVideoClient) GetVideoContext(ctx context.Context, url string) (*ytdl.Video, error) {
	f.videoCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &ytdl.Video{ID: "dQw4w9WgXcQ", Formats: f.formats}, nil
}

func (f *fakeVideoClient) GetStreamContext(ctx context.Context, video *ytdl.Video, format *ytdl.Format) (io.ReadCloser, int64, error) {
	f.streamCalls++
	return io.NopCloser(bytes.NewReader(f.payload)), int64(len(f.payload)), nil
}

func newTestYouTube(t *testing.T, fake *fakeVideoClient) *YouTube {
	t.Helper()
	y := NewYouTube(t.TempDir(), nil, logger.Discard())
	y.newClient = func(*http.Client) videoClient { return fake }
	return y
}

func TestYouTubeAcquireIsIdempotent(t *testing.T) {
	fake := &fakeVideoClient{
		formats: ytdl.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1"`, Bitrate: 500000},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 128000},
		},
		payload: []byte("fake-audio-bytes"),
	}
	y := newTestYouTube(t, fake)
	item := types.WorkItem{Kind: types.KindVideo, Locator: testVideoURL}

	first, err := y.Acquire(context.Background(), item)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	second, err := y.Acquire(context.Background(), item)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	if fake.videoCalls != 1 || fake.streamCalls != 1 {
		t.Fatalf("network calls video=%d stream=%d, want 1 each", fake.videoCalls, fake.streamCalls)
	}
	if first != second {
		t.Fatalf("assets differ: %+v vs %+v", first, second)
	}
	if first.ID != "dQw4w9WgXcQ" || filepath.Ext(first.LocalPath) != ".m4a" {
		t.Fatalf("asset = %+v", first)
	}
	b, _ := os.ReadFile(first.LocalPath)
	if string(b) != "fake-audio-bytes" {
		t.Fatalf("content = %q", b)
	}
}

func TestYouTubeAcquireFailureLeavesNoCache(t *testing.T) {
	fake := &fakeVideoClient{err: errors.New("403 Forbidden")}
	y := newTestYouTube(t, fake)

	_, err := y.Acquire(context.Background(), types.WorkItem{Kind: types.KindVideo, Locator: testVideoURL})
	if !errors.Is(err, types.ErrAcquisition) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(y.dataDir)
	if len(entries) != 0 {
		t.Fatalf("data dir not empty after failure: %v", entries)
	}
}

func TestYouTubeRejectsBadLocator(t *testing.T) {
	y := newTestYouTube(t, &fakeVideoClient{})
	_, err := y.Acquire(context.Background(), types.WorkItem{Kind: types.KindVideo, Locator: "short"})
	if !errors.Is(err, types.ErrAcquisition) {
		t.Fatalf("err = %v", err)
	}
}

func TestPickAudioFormat(t *testing.T) {
	_, _, err := pickAudioFormat(ytdl.FormatList{{MimeType: "video/mp4"}})
	if err == nil {
		t.Fatal("expected error without audio formats")
	}
	f, ext, err := pickAudioFormat(ytdl.FormatList{
		{ItagNo: 249, MimeType: "audio/webm", Bitrate: 50000},
		{ItagNo: 251, MimeType: "audio/webm", Bitrate: 160000},
	})
	if err != nil || f.ItagNo != 251 || ext != ".webm" {
		t.Fatalf("picked %+v %q %v", f, ext, err)
	}
}

func TestLocalAcquireStagesCopy(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "Episode 12.MP3")
	if err := os.WriteFile(src, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLocal(filepath.Join(t.TempDir(), "data"), logger.Discard())
	item := types.WorkItem{Kind: types.KindAudio, Locator: src}

	asset, err := l.Acquire(context.Background(), item)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if asset.ID != LocalID(src) || !strings.HasPrefix(asset.ID, "Episode_12-") || filepath.Base(asset.LocalPath) != asset.ID+".mp3" {
		t.Fatalf("asset = %+v", asset)
	}

	// second call must not need the source any more
	os.Remove(src)
	again, err := l.Acquire(context.Background(), item)
	if err != nil || again != asset {
		t.Fatalf("cached Acquire = %+v, %v", again, err)
	}

	if err := Remove(asset); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(asset.LocalPath); !os.IsNotExist(err) {
		t.Fatalf("asset still present: %v", err)
	}
	if err := Remove(asset); err != nil {
		t.Fatalf("Remove of missing file: %v", err)
	}
}

func TestLocalAcquireMissingFile(t *testing.T) {
	l := NewLocal(t.TempDir(), logger.Discard())
	_, err := l.Acquire(context.Background(), types.WorkItem{Kind: types.KindAudio, Locator: "/nope/missing.mp3"})
	if !errors.Is(err, types.ErrAcquisition) {
		t.Fatalf("err = %v", err)
	}
}

func TestRouterUnknownKind(t *testing.T) {
	r := NewRouter(nil, NewLocal(t.TempDir(), logger.Discard()))
	_, err := r.Acquire(context.Background(), types.WorkItem{Kind: types.KindVideo, Locator: testVideoURL})
	if !errors.Is(err, types.ErrAcquisition) {
		t.Fatalf("err = %v", err)
	}
}

func TestLocalSameNameInDifferentDirsDoNotCollide(t *testing.T) {
	root := t.TempDir()
	srcA := filepath.Join(root, "showA", "episode.mp3")
	srcB := filepath.Join(root, "showB", "episode.mp3")
	for p, body := range map[string]string{srcA: "AUDIO-A", srcB: "AUDIO-B"} {
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	l := NewLocal(filepath.Join(t.TempDir(), "data"), logger.Discard())

	a, err := l.Acquire(context.Background(), types.WorkItem{Kind: types.KindAudio, Locator: srcA})
	if err != nil {
		t.Fatalf("Acquire A: %v", err)
	}
	b, err := l.Acquire(context.Background(), types.WorkItem{Kind: types.KindAudio, Locator: srcB})
	if err != nil {
		t.Fatalf("Acquire B: %v", err)
	}
	if a.ID == b.ID || a.LocalPath == b.LocalPath {
		t.Fatalf("assets collide: %+v %+v", a, b)
	}
	got, _ := os.ReadFile(b.LocalPath)
	if string(got) != "AUDIO-B" {
		t.Fatalf("B content = %q", got)
	}
	if LocalName(srcA) != "episode" || LocalName(srcB) != "episode" {
		t.Fatalf("names = %q %q", LocalName(srcA), LocalName(srcB))
	}
}

func TestYouTubeClientOverridesLibraryUserAgent(t *testing.T) {
	pool, _ := egress.NewPool(nil, time.Second)
	y := NewYouTube(t.TempDir(), pool, logger.Discard())
	var got *http.Client
	y.newClient = func(h *http.Client) videoClient {
		got = h
		return &fakeVideoClient{err: errors.New("unavailable")}
	}
	y.Acquire(context.Background(), types.WorkItem{Kind: types.KindVideo, Locator: testVideoURL})

	tr, ok := got.Transport.(*egress.Transport)
	if !ok || !tr.Override {
		t.Fatalf("transport = %#v", got.Transport)
	}
}
