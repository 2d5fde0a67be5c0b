package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/madcowbg/hoard/pkg/aggregate"
	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/content"
	"github.com/madcowbg/hoard/pkg/deferred"
	"github.com/madcowbg/hoard/pkg/hoarderr"
	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/log"
	"github.com/madcowbg/hoard/pkg/merge"
	"github.com/madcowbg/hoard/pkg/metrics"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/prefs"
	"github.com/madcowbg/hoard/pkg/roots"
	"github.com/madcowbg/hoard/pkg/store"
	"github.com/madcowbg/hoard/pkg/tree"
)

// stagingRootName derives the merge-walk root name holding a cave's new
// scan, kept distinct from the cave's own name (its "current"/base slot).
func stagingRootName(caveUUID string) string { return caveUUID + "#staging" }

// Reconciler drives one cave's current root toward its desired root by
// running the three-way merge (Pull) and, separately, reports the plan
// of file operations needed to bring current in line with desired
// (PendingOperations). A ticker-driven Start/Stop loop calls Pull for
// every configured cave periodically, the daemon mode; cmd/hoard pull
// invokes Pull directly for the one-shot path.
type Reconciler struct {
	store  *store.Store
	config config.HoardConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewReconciler creates a new reconciler over db, consulting cfg for
// cave type and content-preference decisions.
func NewReconciler(db *store.Store, cfg config.HoardConfig) *Reconciler {
	return &Reconciler{
		store:  db,
		config: cfg,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop.
func (r *Reconciler) Start(interval time.Duration) {
	go r.run(interval)
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			metrics.ReconcilerCyclesTotal.Inc()
			for uuid := range r.config.Caves {
				if err := r.Pull(uuid); err != nil {
					metrics.ReconcilerErrorsTotal.WithLabelValues(uuid).Inc()
					r.logger.Error().Err(err).Str("cave", uuid).Msg("pull failed")
				}
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Pull flushes any deferred edits queued against caveUUID's staging
// branch, then runs the three-way merge: the cave's previous scan
// (current) against its new scan (staging), folding in the hoard's
// global desired view and every other cave's desired view so adds and
// backup propagation reach the right places. It commits the merge's
// output to each participating root's desired slot and promotes the
// cave's staging scan to become its new current.
func (r *Reconciler) Pull(caveUUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cave, ok := r.config.Caves[caveUUID]
	if !ok {
		return hoarderr.New(hoarderr.UnknownCave, caveUUID)
	}

	timer := metrics.NewTimer()
	outcome := "ok"
	defer func() {
		timer.ObserveDurationVec(metrics.MergeDuration, caveUUID)
		metrics.MergeCyclesTotal.WithLabelValues(caveUUID, outcome).Inc()
	}()

	caveLog := log.WithCave(caveUUID)

	err := r.store.WriteTxn(func(tx *store.WriteTx) error {
		if err := deferred.Flush(tx, roots.Name(caveUUID), deferred.BranchStaging); err != nil {
			return err
		}

		caveData, err := roots.Get(&tx.ReadTx, roots.Name(caveUUID))
		if err != nil {
			return err
		}
		hoardData, err := roots.Get(&tx.ReadTx, roots.HoardRoot)
		if err != nil {
			return err
		}

		if cave.Type == config.Backup {
			if err := r.checkFreeSpace(tx, cave, caveData, hoardData); err != nil {
				return err
			}
		}

		initial := merge.ByRoot[object.ID]{}
		if caveData.Current != nil {
			initial[caveUUID] = *caveData.Current
		}
		if caveData.Staging != nil {
			initial[stagingRootName(caveUUID)] = *caveData.Staging
		}
		if hoardData.Desired != nil {
			initial["HOARD"] = *hoardData.Desired
		}

		var others []string
		for uuid := range r.config.Caves {
			if uuid == caveUUID {
				continue
			}
			otherData, err := roots.Get(&tx.ReadTx, roots.Name(uuid))
			if err != nil {
				return err
			}
			others = append(others, uuid)
			if otherData.Desired != nil {
				initial[uuid] = *otherData.Desired
			}
		}

		m := &merge.ThreewayMerge{
			Tx:          tx,
			CurrentName: caveUUID,
			StagingName: stagingRootName(caveUUID),
			Others:      append([]string{"HOARD"}, others...),
			Prefs: &prefs.PullMergePreferences{
				Preferences: prefs.PullPreferences{RemoteType: cave.Type},
				Content:     content.NewPreferences(r.config),
				RemoteUUID:  caveUUID,
			},
		}

		result, err := m.Run(initial)
		if err != nil {
			return err
		}

		// The staging key is a merge-walk label, not a root; its content
		// becomes the cave's current below, so it never reaches the registry.
		delete(result, stagingRootName(caveUUID))

		for name, id := range result {
			copied := id
			if name == "HOARD" {
				if err := roots.SetDesired(tx, roots.HoardRoot, &copied); err != nil {
					return err
				}
				continue
			}
			if err := roots.SetDesired(tx, roots.Name(name), &copied); err != nil {
				return err
			}
		}
		// A participating root absent from the result had its whole tree
		// elided by the merge, so its desired slot is cleared.
		for _, name := range append([]string{"HOARD", caveUUID}, others...) {
			if _, ok := result[name]; ok {
				continue
			}
			target := roots.Name(name)
			if name == "HOARD" {
				target = roots.HoardRoot
			}
			if err := roots.SetDesired(tx, target, nil); err != nil {
				return err
			}
		}

		return roots.SetCurrent(tx, roots.Name(caveUUID), caveData.Staging)
	})

	if err != nil {
		outcome = "error"
		return fmt.Errorf("pulling cave %s: %w", caveUUID, err)
	}

	caveLog.Info().Msg("pull completed")
	return nil
}

// checkFreeSpace aborts a backup cave's pull early, advisory-only, when
// the projected disk footprint of holding both its current and the
// merge's prospective desired content would leave under 10% of its
// configured capacity free. It never rolls back already-committed
// assignments; it only blocks starting a new merge. Ported from the
// spirit of the original's backup-safety logging.
func (r *Reconciler) checkFreeSpace(tx *store.WriteTx, cave config.CaveConfig, caveData, hoardData roots.Data) error {
	if cave.CapacityBytes <= 0 {
		return nil
	}

	var currentID, desiredID object.ID
	if caveData.Current != nil {
		currentID = *caveData.Current
	}
	if hoardData.Desired != nil {
		desiredID = *hoardData.Desired
	}

	used, err := aggregate.UsedSize(&tx.ReadTx, currentID, desiredID)
	if err != nil {
		return err
	}

	free := cave.CapacityBytes - used
	threshold := cave.CapacityBytes / 10
	if free < threshold {
		return hoarderr.New(hoarderr.InvariantViolation,
			fmt.Sprintf("cave %s projected free space %d bytes would fall under 10%% of capacity %d bytes", cave.UUID, free, cave.CapacityBytes))
	}
	return nil
}

// Op classifies one pending file operation a cave's local agent must
// perform to bring its current content in line with the hoard's desired
// view of it.
type Op int

const (
	// OpFetch means content.present in desired is absent from current:
	// the file must be copied in.
	OpFetch Op = iota
	// OpDelete means content present in current is absent from desired:
	// the file must be removed.
	OpDelete
	// OpUpdate means the path exists in both but with different content:
	// the file must be replaced.
	OpUpdate
)

func (o Op) String() string {
	switch o {
	case OpFetch:
		return "fetch"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// FileOp is one entry in the plan PendingOperations produces.
type FileOp struct {
	Path     hoardpath.Path
	Op       Op
	ObjectID object.ID // desired content; zero for OpDelete
}

// PendingOperations diffs caveUUID's current root against its desired
// root via tree.ZipDFS, producing the copy/update/delete plan a local
// sync agent would execute. It does not execute the plan itself; that
// step is left to the external consumer.
func (r *Reconciler) PendingOperations(caveUUID string) ([]FileOp, error) {
	if _, ok := r.config.Caves[caveUUID]; !ok {
		return nil, hoarderr.New(hoarderr.UnknownCave, caveUUID)
	}

	var ops []FileOp
	err := r.store.ReadTxn(func(tx *store.ReadTx) error {
		data, err := roots.Get(tx, roots.Name(caveUUID))
		if err != nil {
			return err
		}
		var currentID, desiredID object.ID
		if data.Current != nil {
			currentID = *data.Current
		}
		if data.Desired != nil {
			desiredID = *data.Desired
		}

		return tree.ZipDFS(tx, currentID, desiredID, false, func(path hoardpath.Path, diff tree.DiffType, left, right object.ID, skip func()) error {
			switch diff {
			case tree.LeftMissing:
				if isBlob(tx, right) {
					ops = append(ops, FileOp{Path: path, Op: OpFetch, ObjectID: right})
				}
			case tree.RightMissing:
				if isBlob(tx, left) {
					ops = append(ops, FileOp{Path: path, Op: OpDelete})
				}
			case tree.Different:
				if isBlob(tx, left) && isBlob(tx, right) {
					ops = append(ops, FileOp{Path: path, Op: OpUpdate, ObjectID: right})
				}
			}
			return nil
		})
	})
	return ops, err
}

func isBlob(tx *store.ReadTx, id object.ID) bool {
	if id.IsZero() {
		return false
	}
	obj, err := tx.Get(id)
	if err != nil {
		return false
	}
	_, ok := obj.(object.Blob)
	return ok
}
