package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/drivesync/internal/auth"
	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/history"
	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/remote/gdrive"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/drive/v3"
)

// clock is shared by status lines, the auth manager and the journal
var clock = clockwork.NewRealClock()

func getConfigDir() string {
	dir, err := config.GetConfigDir()
	if err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "drivesync")
}

func newAuthManager() *auth.Manager {
	return auth.NewManagerWithOptions(getConfigDir(), auth.ManagerOptions{
		Clock:  clock,
		Logger: logger,
	})
}

// newStore returns a Drive store that authenticates on first use with the
// mode from the loaded configuration
func newStore(cfg *config.Config, flags types.GlobalFlags) *gdrive.Store {
	mgr := newAuthManager()
	opts := auth.SessionOptionsFromConfig(cfg, flags.Profile)
	opts.Interactive = true
	opts.OpenBrowser = openBrowser

	connect := func(ctx context.Context) (*drive.Service, error) {
		session, err := mgr.OpenSession(ctx, opts)
		if err != nil {
			return nil, err
		}
		return session.Service, nil
	}
	return gdrive.New(connect, gdrive.Options{
		Profile:      opts.Profile,
		MaxRetries:   cfg.MaxRetries,
		RetryDelayMs: cfg.RetryBaseDelay,
		Logger:       logger,
	})
}

// statusSink picks where status lines go: stderr unless quiet, and the log
// file when one is configured
func statusSink(flags types.GlobalFlags) logging.StatusFunc {
	var sinks []logging.StatusFunc
	if !flags.Quiet {
		sinks = append(sinks, logging.NewStatusWriter(os.Stderr, clock))
	}
	if flags.LogFile != "" {
		sinks = append(sinks, logging.StatusToLogger(logger))
	}
	if len(sinks) == 0 {
		return logging.DiscardStatus
	}
	return logging.TeeStatus(sinks...)
}

func openHistory() (*history.DB, error) {
	path, err := config.GetHistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path, history.WithClock(clock))
}
