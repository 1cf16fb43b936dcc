package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/ui"
)

// Settings keys read through the Store.
const (
	KeySavePath            = "savePath"
	KeyPlaylistSeparateDir = "playlistSeparateDir"
	KeyOAuthToken          = "oauthToken"
	KeyClientID            = "clientId"
)

// Loaded is a resolved configuration: the raw store plus its decoded view.
type Loaded struct {
	Store  *FileStore
	Config *model.Config
}

// AppDir returns ~/.cloudie.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cloudie"), nil
}

// SearchPaths lists config locations in lookup order.
func SearchPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		"config.json",
		filepath.Join(home, ".cloudie", "config.json"),
		filepath.Join(home, ".config", "cloudie", "config.json"),
	}, nil
}

// ReadConfig loads the config file. An explicit path is used as-is; otherwise
// the search paths are tried in order and, when none exists, a default file
// is created at ~/.cloudie/config.json.
func ReadConfig(explicit string) (*Loaded, error) {
	var store *FileStore
	if explicit != "" {
		s, err := LoadFileStore(explicit)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", explicit, err)
		}
		store = s
	} else {
		paths, err := SearchPaths()
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			s, err := LoadFileStore(path)
			if err == nil {
				store = s
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
		if store == nil {
			store, err = createDefault(paths[1])
			if err != nil {
				return nil, err
			}
		}
	}

	checkPermissions(store.Path())

	var cfg model.Config
	if err := store.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &Loaded{Store: store, Config: &cfg}, nil
}

func createDefault(path string) (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	store := NewFileStore(path)
	store.Set(KeySavePath, filepath.Join(home, "Music", "cloudie"))
	store.Set(KeyPlaylistSeparateDir, true)
	store.Set("parallelDownloads", model.DefaultParallelDownloads)
	store.Set("fileNaming", model.FileNamingTitleArtist)
	// Left blank for the user to fill in; the API rejects requests without it.
	store.Set(KeyClientID, "")
	if err := store.Save(); err != nil {
		return nil, err
	}
	ui.PrintInfo(fmt.Sprintf("Created default config at %s", path))
	return store, nil
}

// checkPermissions warns about group/world-readable config files and
// tightens them to 0600 where chmod is meaningful.
func checkPermissions(configPath string) {
	fileInfo, err := os.Stat(configPath)
	if err != nil {
		return
	}
	mode := fileInfo.Mode()
	if mode.Perm()&0077 == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%s WARNING: Config file has insecure permissions (%04o)\n", ui.ColorYellow+ui.SymbolWarning+ui.ColorReset, mode.Perm())
	fmt.Fprintf(os.Stderr, "   File: %s\n", configPath)
	fmt.Fprintf(os.Stderr, "   Risk: Config contains your OAuth token and should only be readable by you\n")
	if runtime.GOOS == "windows" {
		fmt.Fprintf(os.Stderr, "   Windows ACLs in use; skipping chmod auto-fix\n\n")
		return
	}
	if chmodErr := os.Chmod(configPath, 0600); chmodErr != nil {
		fmt.Fprintf(os.Stderr, "   Auto-fix failed: %v\n", chmodErr)
		fmt.Fprintf(os.Stderr, "   Fix manually: chmod 600 %s\n\n", configPath)
		return
	}
	fmt.Fprintf(os.Stderr, "   Auto-fix applied: chmod 600 %s\n\n", configPath)
}

// ApplyDefaults fills unset optional settings and validates the rest.
func ApplyDefaults(cfg *model.Config) error {
	cfg.SavePath = strings.TrimSpace(cfg.SavePath)
	if cfg.ParallelDownloads <= 0 {
		cfg.ParallelDownloads = model.DefaultParallelDownloads
	}
	switch cfg.FileNaming {
	case "":
		cfg.FileNaming = model.FileNamingTitleArtist
	case model.FileNamingTitle, model.FileNamingArtistTitle, model.FileNamingTitleArtist:
	default:
		return fmt.Errorf("invalid fileNaming: %q (must be title, artist-title or title-artist)", cfg.FileNaming)
	}
	cfg.OAuthToken = strings.TrimPrefix(strings.TrimSpace(cfg.OAuthToken), "OAuth ")

	appDir, err := AppDir()
	if err != nil {
		return err
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(appDir, "cache")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(appDir, "cloudie.db")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(appDir, "cloudie.log")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = model.DefaultListenAddr
	}
	return nil
}

// ResolveFfmpegBinary locates the ffmpeg binary based on config settings.
func ResolveFfmpegBinary(cfg *model.Config) (string, error) {
	preferred := strings.TrimSpace(cfg.FfmpegNameStr)

	if preferred != "" && preferred != "./ffmpeg" && preferred != "ffmpeg" {
		if resolved, err := exec.LookPath(preferred); err == nil {
			return resolved, nil
		}
		if info, err := os.Stat(preferred); err == nil && !info.IsDir() {
			return preferred, nil
		}
		return "", fmt.Errorf("configured ffmpeg binary not found: %s", preferred)
	}

	if cfg.UseFfmpegEnvVar || preferred == "ffmpeg" {
		if resolved, err := exec.LookPath("ffmpeg"); err == nil {
			return resolved, nil
		}
		return "", errors.New("ffmpeg not found in PATH (install ffmpeg or set ffmpegNameStr to an absolute/local binary path)")
	}

	candidates := []string{"./ffmpeg"}
	if exePath, err := os.Executable(); err == nil {
		exeLocal := filepath.Join(filepath.Dir(exePath), "ffmpeg")
		if exeLocal != "./ffmpeg" {
			candidates = append(candidates, exeLocal)
		}
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if resolved, err := exec.LookPath("ffmpeg"); err == nil {
		return resolved, nil
	}
	return "", errors.New("ffmpeg binary not found (checked ./ffmpeg and PATH)")
}

// ParseArgs parses CLI arguments using go-arg.
func ParseArgs() (*model.Args, *arg.Parser) {
	var args model.Args
	p := arg.MustParse(&args)
	return &args, p
}

// Load parses the command line and reads the config it points at. A --out
// override replaces savePath in both the store and the decoded view for
// this process only.
func Load(args *model.Args) (*Loaded, error) {
	loaded, err := ReadConfig(args.Config)
	if err != nil {
		return nil, err
	}
	if out := strings.TrimSpace(args.Out); out != "" {
		loaded.Store.Set(KeySavePath, out)
		loaded.Config.SavePath = out
	}
	return loaded, nil
}
