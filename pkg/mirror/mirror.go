// Package mirror keeps a best-effort JSON copy of a collection on disk.
// Snapshots are taken by a single actor, so writes to the same file never
// interleave and the most recent request always wins.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Reader is the part of the store the mirror needs.
type Reader interface {
	Find(ctx context.Context, collection string, q repository.Query) ([]models.Record, error)
}

// FileName returns the mirror file name for a collection.
func FileName(collection string) string {
	return strings.ToLower(collection) + ".json"
}

// Messages
type writeSnapshot struct {
	Collection string
}

type snapshotRequest struct {
	Collection string
}

type snapshotResult struct {
	Path    string
	Records int
	Err     error
}

// snapshotActor reads a collection and overwrites its mirror file.
type snapshotActor struct {
	source  Reader
	fs      afero.Fs
	dir     string
	timeout time.Duration
	logger  *zap.Logger
}

func (a *snapshotActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.logger.Info("Mirror actor started", zap.String("dir", a.dir))

	case *writeSnapshot:
		res := a.write(msg.Collection)
		if res.Err != nil {
			a.logger.Error("Snapshot failed",
				zap.String("collection", msg.Collection),
				zap.Error(res.Err))
			return
		}
		a.logger.Debug("Snapshot written",
			zap.String("path", res.Path),
			zap.Int("records", res.Records))

	case *snapshotRequest:
		res := a.write(msg.Collection)
		if ctx.Sender() != nil {
			ctx.Respond(&res)
		}

	case *actor.Stopping:
		a.logger.Info("Mirror actor stopping")
	}
}

func (a *snapshotActor) write(collection string) snapshotResult {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	path := filepath.Join(a.dir, FileName(collection))
	records, err := a.source.Find(ctx, collection, repository.Query{})
	if err != nil {
		return snapshotResult{Path: path, Err: fmt.Errorf("read %s: %w", collection, err)}
	}
	if records == nil {
		records = []models.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return snapshotResult{Path: path, Err: fmt.Errorf("encode %s: %w", collection, err)}
	}

	// Readers of the mirror never see a half-written file.
	tmp := path + ".tmp"
	if err := afero.WriteFile(a.fs, tmp, data, 0o644); err != nil {
		return snapshotResult{Path: path, Err: fmt.Errorf("write %s: %w", tmp, err)}
	}
	if err := a.fs.Rename(tmp, path); err != nil {
		return snapshotResult{Path: path, Err: fmt.Errorf("rename %s: %w", tmp, err)}
	}
	return snapshotResult{Path: path, Records: len(records)}
}

// Mirror is the handle the rest of the service uses to request snapshots.
type Mirror struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	timeout time.Duration
	logger  *zap.Logger
}

// New starts the snapshot actor. Files are written under cfg.Dir on fs.
func New(source Reader, fs afero.Fs, cfg config.MirrorConfig, logger *zap.Logger) (*Mirror, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := fs.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror dir: %w", err)
	}

	logger = logger.Named("mirror")
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return &snapshotActor{
			source:  source,
			fs:      fs,
			dir:     cfg.Dir,
			timeout: timeout,
			logger:  logger,
		}
	})

	pid, err := system.Root.SpawnNamed(props, "mirror")
	if err != nil {
		system.Shutdown()
		return nil, fmt.Errorf("failed to spawn mirror actor: %w", err)
	}

	return &Mirror{
		system:  system,
		pid:     pid,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Trigger queues a snapshot of collection and returns immediately.
func (m *Mirror) Trigger(collection string) {
	m.system.Root.Send(m.pid, &writeSnapshot{Collection: collection})
}

// Snapshot writes the mirror file for collection and waits for the result.
// Snapshots queued earlier by Trigger are written first.
func (m *Mirror) Snapshot(ctx context.Context, collection string) error {
	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}

	res, err := m.system.Root.RequestFuture(m.pid, &snapshotRequest{Collection: collection}, timeout).Result()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", collection, err)
	}
	result, ok := res.(*snapshotResult)
	if !ok {
		return fmt.Errorf("snapshot %s: unexpected reply %T", collection, res)
	}
	if result.Err != nil {
		return result.Err
	}
	m.logger.Info("Snapshot written",
		zap.String("path", result.Path),
		zap.Int("records", result.Records))
	return nil
}

// Close drains queued snapshots and stops the actor system.
func (m *Mirror) Close() {
	m.system.Root.PoisonFuture(m.pid).Wait()
	m.system.Shutdown()
}
