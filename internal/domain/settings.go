package domain

// Settings is the read-only configuration snapshot consumed by executors and
// the scheduler. MaxConcurrentTasks of 0 means unlimited.
type Settings struct {
	DefaultCastDevice      string   `json:"default_cast_device"`
	DefaultMediaPlayer     string   `json:"default_media_player"`
	DefaultMoveDestination string   `json:"default_move_destination"`
	SubtitleLanguages      []string `json:"subtitle_languages"`
	MaxConcurrentTasks     int      `json:"max_concurrent_tasks"`
	MediaBaseURL           string   `json:"media_base_url"`
}
