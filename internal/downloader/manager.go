package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"magnet-playlets/internal/domain"
)

var (
	ErrTorrentNotFound = errors.New("torrent not found")
	ErrNoMetadata      = errors.New("torrent metadata not available yet")
	ErrFileNotFound    = errors.New("file not found in torrent")
)

// EventHandler receives torrent lifecycle events. It is called from the
// per-torrent monitor goroutine.
type EventHandler func(domain.TorrentEvent)

// Manager owns the torrent client and exposes the operations playlet
// actions perform on downloaded data.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	OnEvent(fn EventHandler)
	AddMagnet(ctx context.Context, uri string) (domain.TorrentSummary, error)
	AddTorrentFile(ctx context.Context, path string) (domain.TorrentSummary, error)
	List() []domain.TorrentSummary
	ListFiles(ctx context.Context, torrentID string) ([]domain.FileInfo, error)
	OpenFile(torrentID string, index int) (io.ReadSeekCloser, domain.FileInfo, error)
	LocalPath(torrentID string) (string, error)
	FilePath(torrentID string, file domain.FileInfo) (string, error)
	Relocate(ctx context.Context, torrentID, destination string) (string, error)
	Remove(ctx context.Context, torrentID string, deleteFiles bool) error
}

type Config struct {
	DataDir        string
	ListenPort     int
	Seed           bool
	StatusInterval time.Duration
	TrackerList    []string
	Logger         *logrus.Logger
}

type manager struct {
	cfg    Config
	client *torrent.Client

	files singleflight.Group

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	records map[string]*record
	handler EventHandler
}

// record tracks one torrent. After a relocation the torrent is dropped from
// the client and served from base using the cached file list.
type record struct {
	id       string
	t        *torrent.Torrent
	name     string
	base     string
	total    int64
	files    []domain.FileInfo
	uploaded int64
	dropped  bool
}

func NewManager(cfg Config) Manager {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if len(cfg.TrackerList) == 0 {
		cfg.TrackerList = defaultTrackers()
	}
	return &manager{
		cfg:     cfg,
		records: make(map[string]*record),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = m.cfg.DataDir
	clientConfig.Seed = m.cfg.Seed
	if m.cfg.ListenPort > 0 {
		clientConfig.ListenPort = m.cfg.ListenPort
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("create torrent client: %w", err)
	}

	m.client = client
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("torrent client started, data dir: %s", m.cfg.DataDir)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	if m.client != nil {
		m.client.Close()
	}
	m.cfg.Logger.Info("torrent client stopped")
}

func (m *manager) OnEvent(fn EventHandler) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

func (m *manager) AddMagnet(ctx context.Context, uri string) (domain.TorrentSummary, error) {
	if m.client == nil {
		return domain.TorrentSummary{}, errors.New("torrent client not started")
	}
	t, err := m.client.AddMagnet(uri)
	if err != nil {
		return domain.TorrentSummary{}, fmt.Errorf("add magnet: %w", err)
	}
	return m.track(t), nil
}

func (m *manager) AddTorrentFile(ctx context.Context, path string) (domain.TorrentSummary, error) {
	if m.client == nil {
		return domain.TorrentSummary{}, errors.New("torrent client not started")
	}
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return domain.TorrentSummary{}, fmt.Errorf("load torrent file: %w", err)
	}
	t, err := m.client.AddTorrent(mi)
	if err != nil {
		return domain.TorrentSummary{}, fmt.Errorf("add torrent: %w", err)
	}
	return m.track(t), nil
}

func (m *manager) track(t *torrent.Torrent) domain.TorrentSummary {
	id := t.InfoHash().HexString()

	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		rec = &record{id: id, t: t, name: t.Name(), base: m.cfg.DataDir}
		m.records[id] = rec
	}
	m.mu.Unlock()

	if !ok {
		for _, tracker := range m.cfg.TrackerList {
			t.AddTrackers([][]string{{tracker}})
		}
		m.wg.Add(1)
		go m.monitor(rec)
	}
	return m.summary(rec)
}

func (m *manager) monitor(rec *record) {
	defer m.wg.Done()
	t := rec.t
	logger := m.cfg.Logger.WithField("torrent_id", rec.id)

	m.emit(rec, domain.TriggerTorrentAdded, 0)

	select {
	case <-m.ctx.Done():
		return
	case <-t.Closed():
		return
	case <-t.GotInfo():
	}

	m.captureInfo(rec)
	logger.Infof("metadata received for %s", rec.name)
	m.emit(rec, domain.TriggerMetadataReceived, 0)
	t.DownloadAll()

	ticker := time.NewTicker(m.cfg.StatusInterval)
	defer ticker.Stop()

	completed := false
	lastRatio := 0.0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.Closed():
			return
		case <-ticker.C:
			if !completed && t.BytesMissing() == 0 {
				completed = true
				logger.Info("download completed")
				m.emit(rec, domain.TriggerDownloadComplete, 0)
			}
			if !completed || !m.cfg.Seed {
				continue
			}

			stats := t.Stats()
			uploaded := stats.BytesWrittenData.Int64()
			m.mu.Lock()
			rec.uploaded = uploaded
			m.mu.Unlock()
			if ratio := seedRatio(uploaded, rec.total); ratio > lastRatio {
				lastRatio = ratio
				m.emit(rec, domain.TriggerSeedingRatio, ratio)
			}
		}
	}
}

func (m *manager) captureInfo(rec *record) {
	info := rec.t.Info()
	if info == nil {
		return
	}
	tfiles := rec.t.Files()
	files := make([]domain.FileInfo, len(tfiles))
	for i, f := range tfiles {
		rel := info.BestName()
		if info.IsDir() {
			rel = path.Join(rel, f.DisplayPath())
		}
		files[i] = newFileInfo(i, rel, f.Length())
	}

	m.mu.Lock()
	rec.name = info.BestName()
	rec.total = info.TotalLength()
	rec.files = files
	m.mu.Unlock()
}

func (m *manager) emit(rec *record, kind domain.TriggerKind, ratio float64) {
	m.mu.Lock()
	handler := m.handler
	ev := domain.TorrentEvent{
		Kind:        kind,
		TorrentID:   rec.id,
		TorrentName: rec.name,
		Ratio:       ratio,
	}
	if rec.files != nil {
		total := rec.total
		count := len(rec.files)
		ev.TotalBytes = &total
		ev.FileCount = &count
	}
	m.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
}

func seedRatio(uploaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(uploaded) / float64(total)
}

func (m *manager) List() []domain.TorrentSummary {
	m.mu.Lock()
	recs := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	m.mu.Unlock()

	out := make([]domain.TorrentSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, m.summary(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *manager) summary(rec *record) domain.TorrentSummary {
	m.mu.Lock()
	s := domain.TorrentSummary{
		ID:             rec.id,
		Name:           rec.name,
		TotalBytes:     rec.total,
		CompletedBytes: rec.total,
		UploadedBytes:  rec.uploaded,
		FileCount:      len(rec.files),
		HasInfo:        rec.files != nil,
	}
	t, dropped := rec.t, rec.dropped
	m.mu.Unlock()

	if t != nil && !dropped && s.HasInfo {
		s.CompletedBytes = t.BytesCompleted()
	}
	return s
}

func (m *manager) lookup(id string) (*record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrTorrentNotFound
	}
	return rec, nil
}

// ListFiles returns the torrent's files once metadata is known. Concurrent
// calls for the same torrent share one lookup.
func (m *manager) ListFiles(ctx context.Context, torrentID string) ([]domain.FileInfo, error) {
	v, err, _ := m.files.Do(torrentID, func() (any, error) {
		rec, err := m.lookup(torrentID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		known := rec.files != nil
		m.mu.Unlock()
		if !known && rec.t != nil && rec.t.Info() != nil {
			m.captureInfo(rec)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if rec.files == nil {
			return nil, ErrNoMetadata
		}
		return append([]domain.FileInfo(nil), rec.files...), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.FileInfo), nil
}

// OpenFile returns a seekable reader over one file. While the torrent is
// active the reader prioritises the pieces it reads.
func (m *manager) OpenFile(torrentID string, index int) (io.ReadSeekCloser, domain.FileInfo, error) {
	rec, err := m.lookup(torrentID)
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	m.mu.Lock()
	files, t, dropped, base := rec.files, rec.t, rec.dropped, rec.base
	m.mu.Unlock()

	if index < 0 || index >= len(files) {
		return nil, domain.FileInfo{}, fmt.Errorf("%w: index %d", ErrFileNotFound, index)
	}
	fi := files[index]

	if t != nil && !dropped {
		r := t.Files()[index].NewReader()
		r.SetResponsive()
		r.SetReadahead(5 << 20)
		return r, fi, nil
	}

	f, err := os.Open(filepath.Join(base, filepath.FromSlash(fi.Path)))
	if err != nil {
		return nil, domain.FileInfo{}, fmt.Errorf("open file: %w", err)
	}
	return f, fi, nil
}

// LocalPath is the on-disk root of the torrent's data: the file itself for
// single-file torrents, the top directory otherwise.
func (m *manager) LocalPath(torrentID string) (string, error) {
	rec, err := m.lookup(torrentID)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.name == "" {
		return "", ErrNoMetadata
	}
	return filepath.Join(rec.base, rec.name), nil
}

func (m *manager) FilePath(torrentID string, file domain.FileInfo) (string, error) {
	rec, err := m.lookup(torrentID)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return filepath.Join(rec.base, filepath.FromSlash(file.Path)), nil
}

// Relocate moves the torrent's data into destination and stops sharing it.
// It returns the new data root.
func (m *manager) Relocate(ctx context.Context, torrentID, destination string) (string, error) {
	rec, err := m.lookup(torrentID)
	if err != nil {
		return "", err
	}
	src, err := m.LocalPath(torrentID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	t, dropped := rec.t, rec.dropped
	m.mu.Unlock()
	if t != nil && !dropped {
		t.DisallowDataDownload()
		t.DisallowDataUpload()
	}

	target, err := moveTree(src, destination)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	rec.base = destination
	rec.dropped = true
	m.mu.Unlock()
	if t != nil && !dropped {
		t.Drop()
	}
	m.cfg.Logger.WithField("torrent_id", torrentID).Infof("moved data to %s", target)
	return target, nil
}

func (m *manager) Remove(ctx context.Context, torrentID string, deleteFiles bool) error {
	rec, err := m.lookup(torrentID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.records, torrentID)
	t, dropped := rec.t, rec.dropped
	root := ""
	if rec.name != "" {
		root = filepath.Join(rec.base, rec.name)
	}
	m.mu.Unlock()

	if t != nil && !dropped {
		t.Drop()
	}
	if deleteFiles && root != "" {
		if err := os.RemoveAll(root); err != nil {
			return fmt.Errorf("delete torrent data: %w", err)
		}
	}
	m.cfg.Logger.WithField("torrent_id", torrentID).Infof("removed torrent (delete files: %t)", deleteFiles)
	return nil
}

func defaultTrackers() []string {
	return []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
		"udp://open.stealth.si:80/announce",
		"udp://exodus.desync.com:6969/announce",
		"http://tracker.opentrackr.org:1337/announce",
		"http://tracker.openbittorrent.com:80/announce",
		"udp://tracker.torrent.eu.org:451/announce",
		"udp://tracker.moeking.me:6969/announce",
	}
}

var _ Manager = (*manager)(nil)
