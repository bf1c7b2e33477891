package domain

// FileInfo describes one file inside a torrent.
type FileInfo struct {
	Index      int
	Name       string
	Path       string
	Length     int64
	IsPlayable bool
	MimeType   string
}

// TorrentEvent is emitted by the torrent engine or the folder watcher and
// instantiates tasks for playlets whose trigger matches Kind. TotalBytes and
// FileCount are nil until metadata is known.
type TorrentEvent struct {
	Kind        TriggerKind
	TorrentID   string
	TorrentName string
	TotalBytes  *int64
	FileCount   *int
	Ratio       float64
	Path        string
}

// TorrentSummary is a point-in-time view of a managed torrent.
type TorrentSummary struct {
	ID             string
	Name           string
	TotalBytes     int64
	CompletedBytes int64
	UploadedBytes  int64
	FileCount      int
	HasInfo        bool
}
