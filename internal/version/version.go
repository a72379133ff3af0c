package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/payrecon/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var vcsOnce sync.Once

// fromBuildInfo подставляет vcs.revision и vcs.time, если ldflags не заданы.
func fromBuildInfo() {
	vcsOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "unknown" && s.Value != "":
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			case s.Key == "vcs.time" && date == "unknown" && s.Value != "":
				date = s.Value
			}
		}
	})
}

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) {
	fromBuildInfo()
	return version, commit, date
}

func GetVersion() string { return version }

func GetCommit() string {
	fromBuildInfo()
	return commit
}

func GetDate() string {
	fromBuildInfo()
	return date
}

// String — строка для флага --version и стартового лога.
func String() string {
	v, c, d := Info()
	return fmt.Sprintf("payrecon %s (commit %s, built %s)", v, c, d)
}
