package playback

import (
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
)

// backendModules are the codec and container libraries sessions decode with.
var backendModules = []string{
	"github.com/go-audio/wav",
	"github.com/hajimehoshi/go-mp3",
	"github.com/mewkiz/flac",
	"github.com/Eyevinn/mp4ff",
	"github.com/asticode/go-astiav",
	"github.com/gopxl/beep/v2",
	"golang.org/x/image",
}

var versionOnce sync.Once

// logBackendVersions logs the linked backend versions once per process. A
// replaced or development build of a backend is logged as an error since
// its behaviour may not match the released module.
func logBackendVersions(logger *slog.Logger) {
	versionOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			logger.Warn("backend versions unavailable")
			return
		}
		for _, dep := range info.Deps {
			if !isBackend(dep.Path) {
				continue
			}
			switch {
			case dep.Replace != nil:
				logger.Error("backend module replaced",
					"module", dep.Path,
					"version", dep.Version,
					"replacement", dep.Replace.Path,
					"replacement_version", dep.Replace.Version)
			case dep.Version == "" || dep.Version == "(devel)":
				logger.Error("backend module has no release version", "module", dep.Path)
			default:
				logger.Info("backend", "module", dep.Path, "version", dep.Version)
			}
		}
	})
}

func isBackend(path string) bool {
	for _, m := range backendModules {
		if path == m || strings.HasPrefix(path, m+"/") {
			return true
		}
	}
	return false
}
