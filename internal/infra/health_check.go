package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// WatchExecutable fires once the running binary is replaced on disk, so a deploy can restart the process.
func WatchExecutable(ctx context.Context) <-chan struct{} {
	exeFilename, err := os.Executable()
	if err != nil {
		log.WithField("object", "WatchExecutable").WithField("error", err.Error()).Warn("cant resolve executable path")
		return make(chan struct{})
	}
	return WatchFile(ctx, exeFilename, checkExecInterval)
}

// WatchFile closes the returned channel when the modification time of path changes.
// It never fires if path cannot be stat-ed at start.
func WatchFile(ctx context.Context, path string, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	entry := log.WithField("object", "WatchFile").WithField("path", path)

	stat, err := os.Stat(path)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant stat file, not watching")
		return ch
	}
	originalTime := stat.ModTime()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(path)
				if err != nil {
					entry.WithField("error", err.Error()).Debug("cant stat file")
					continue
				}
				if !originalTime.Equal(stat.ModTime()) {
					entry.Info("file was modified")
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}
