package executor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/storage"
)

// -- Fakes -------------------------------------------------------------------

type fakeTorrents struct {
	root       string
	relocated  []string
	removed    []bool
	relocErr   error
	removeErr  error
	missingDir bool
}

func (f *fakeTorrents) LocalPath(torrentID string) (string, error) {
	if f.missingDir {
		return "", errors.New("torrent not found")
	}
	return filepath.Join(f.root, torrentID), nil
}

func (f *fakeTorrents) FilePath(_ string, file domain.FileInfo) (string, error) {
	return filepath.Join(f.root, file.Path), nil
}

func (f *fakeTorrents) Relocate(_ context.Context, _ string, destination string) (string, error) {
	if f.relocErr != nil {
		return "", f.relocErr
	}
	f.relocated = append(f.relocated, destination)
	return destination, nil
}

func (f *fakeTorrents) Remove(_ context.Context, _ string, deleteFiles bool) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, deleteFiles)
	return nil
}

type castCall struct {
	device domain.Device
	media  CastMedia
}

type fakeCaster struct {
	devices []domain.Device
	calls   []castCall
	err     error
}

func (f *fakeCaster) Lookup(id string) (domain.Device, bool) {
	for _, d := range f.devices {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Device{}, false
}

func (f *fakeCaster) Connected() []domain.Device {
	var out []domain.Device
	for _, d := range f.devices {
		if d.Connected {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeCaster) Cast(_ context.Context, device domain.Device, media CastMedia) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, castCall{device: device, media: media})
	return nil
}

type fakeNotifier struct {
	titles   []string
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, title, message string) error {
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return nil
}

type fakePlayer struct {
	app    string
	target string
}

func (f *fakePlayer) Open(_ context.Context, app, target string) error {
	f.app = app
	f.target = target
	return nil
}

type fakeRunner struct {
	mu       sync.Mutex
	commands []Command
	out      []byte
	err      error
}

func (f *fakeRunner) Run(_ context.Context, c Command) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, c)
	return f.out, f.err
}

type fetchCall struct {
	path string
	lang string
}

type fakeFetcher struct {
	calls []fetchCall
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, videoPath, language string) error {
	f.calls = append(f.calls, fetchCall{path: videoPath, lang: language})
	return f.err
}

type uploadCall struct {
	path string
	opts storage.UploadOptions
}

type fakeStorage struct {
	uploads []uploadCall
}

func (f *fakeStorage) UploadDirectory(_ context.Context, localPath string, opts storage.UploadOptions) (string, error) {
	f.uploads = append(f.uploads, uploadCall{path: localPath, opts: opts})
	return "s3://" + opts.Bucket + "/" + opts.KeyPrefix, nil
}

func (f *fakeStorage) ListObjects(context.Context, string, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeStorage) DeletePrefix(context.Context, string, string) (int, error) {
	return 0, nil
}

// -- Helpers -----------------------------------------------------------------

func videoFile(index int, name string, length int64) domain.FileInfo {
	return domain.FileInfo{
		Index:      index,
		Name:       name,
		Path:       "Show/" + name,
		Length:     length,
		MimeType:   "video/x-matroska",
		IsPlayable: true,
	}
}

func baseInput(files ...domain.FileInfo) Input {
	return Input{
		TorrentID:   "abc123",
		TorrentName: "Show",
		Files:       files,
		Settings:    domain.Settings{MediaBaseURL: "http://127.0.0.1:8080"},
	}
}
