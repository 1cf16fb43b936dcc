package model

// Config holds the user's configuration as decoded from config.json.
// The download pipeline itself reads savePath/playlistSeparateDir through the
// key-value store so that missing values surface as errors instead of zero values.
type Config struct {
	SavePath             string `json:"savePath"`
	PlaylistSeparateDir  bool   `json:"playlistSeparateDir"`
	ParallelDownloads    int    `json:"parallelDownloads,omitempty"`
	PreferDirectDownload bool   `json:"preferDirectDownload,omitempty"`
	FileNaming           string `json:"fileNaming,omitempty"`
	ClientID             string `json:"clientId,omitempty"`
	OAuthToken           string `json:"oauthToken,omitempty"`
	UseFfmpegEnvVar      bool   `json:"useFfmpegEnvVar,omitempty"`
	FfmpegNameStr        string `json:"ffmpegNameStr,omitempty"`
	CacheDir             string `json:"cacheDir,omitempty"`
	DBPath               string `json:"dbPath,omitempty"`
	LogFile              string `json:"logFile,omitempty"`
	LogMaxSizeMB         int    `json:"logMaxSizeMB,omitempty"`
	LogMaxBackups        int    `json:"logMaxBackups,omitempty"`
	LogMaxAgeDays        int    `json:"logMaxAgeDays,omitempty"`
	GotifyURL            string `json:"gotifyUrl,omitempty"`
	GotifyToken          string `json:"gotifyToken,omitempty"`
	ListenAddr           string `json:"listenAddr,omitempty"`
}

// FetchCmd downloads a single already-resolved stream URL.
type FetchCmd struct {
	URL      string `arg:"--url,required" help:"final stream URL"`
	Type     string `arg:"--type,required" help:"transport: direct, progressive or hls"`
	Preset   string `arg:"--preset" default:"none" help:"quality preset, e.g. opus_0_0, aac_160k, mp3_1_0"`
	Title    string `arg:"--title,required" help:"file name without extension"`
	Playlist string `arg:"--playlist" help:"playlist folder name"`
}

// GrabCmd resolves SoundCloud track or playlist URLs and queues them.
type GrabCmd struct {
	Urls []string `arg:"positional,required" help:"track/playlist URLs or .txt files with one URL per line"`
}

// TasksCmd manages the persistent download queue.
type TasksCmd struct {
	Action string `arg:"positional" default:"list" help:"list, resume, delete, clear or run"`
	ID     int64  `arg:"positional" help:"task id for resume/delete"`
}

// LoginCmd opens the interactive sign-in window.
type LoginCmd struct {
	Headless bool `arg:"--headless" help:"run the browser without a window (debugging only)"`
}

// ServeCmd starts the local HTTP API.
type ServeCmd struct {
	Addr string `arg:"--addr" help:"listen address (default from config or 127.0.0.1:7420)"`
}

// CompletionCmd prints a shell completion script.
type CompletionCmd struct {
	Shell string `arg:"positional" help:"bash, zsh or fish"`
}

// Args holds CLI arguments parsed by go-arg.
type Args struct {
	Fetch      *FetchCmd      `arg:"subcommand:fetch" help:"download one stream URL"`
	Grab       *GrabCmd       `arg:"subcommand:grab" help:"queue and download SoundCloud tracks or playlists"`
	Tasks      *TasksCmd      `arg:"subcommand:tasks" help:"inspect and manage the download queue"`
	Login      *LoginCmd      `arg:"subcommand:login" help:"sign in to SoundCloud and store the OAuth token"`
	Serve      *ServeCmd      `arg:"subcommand:serve" help:"serve the JSON API"`
	Completion *CompletionCmd `arg:"subcommand:completion" help:"print a shell completion script"`
	Config     string         `arg:"-c,--config" help:"path to config.json"`
	Out        string         `arg:"-o,--out" help:"override savePath for this run"`
}

// Description provides the go-arg help header.
func (Args) Description() string {
	return "cloudie - SoundCloud track downloader\n"
}

// DownloadResult is what callers of the download pipeline receive.
type DownloadResult struct {
	Path             string `json:"path"`
	OriginalFileName string `json:"origFileName"`
}
