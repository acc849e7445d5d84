// Package updater implements the single-threaded segment updater: all
// segment-register mutations, all meta.json writes, and all
// merge-scheduling decisions run on one goroutine fed by a task queue, so
// every mutation is serialized behind a single owner regardless of how
// many writers or merges are in flight.
package updater

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/invindex"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/telemetry"
)

// SegmentEntry is one segment as tracked by a register: its census handle
// (pinning its files against GC), its on-disk descriptive metadata, and
// whether it was written in the block-compressed layout.
type SegmentEntry struct {
	Meta       *segment.Meta
	Info       *invindex.SegmentMeta
	Compressed bool
}

func (e SegmentEntry) record() invindex.SegmentRecord {
	return invindex.SegmentRecord{SegmentId: e.Meta.SegmentId.String(), Compressed: e.Compressed, Info: e.Info}
}

// register is a SegmentId -> SegmentEntry map; the updater keeps one for
// uncommitted and one for committed segments.
type register map[segment.Id]SegmentEntry

func (r register) entries() []SegmentEntry {
	out := make([]SegmentEntry, 0, len(r))
	for _, e := range r {
		out = append(out, e)
	}
	return out
}

// Updater owns all mutations to the segment registers: register state is
// only ever touched from the single task goroutine, no matter how many
// writers or merges are in flight.
type Updater struct {
	dir         *directory.Directory
	mergeCfg    config.MergePolicyConfig
	mergePolicy MergePolicy
	telemetry   *telemetry.Store

	tasks  chan func()
	killed atomic.Bool

	mu          sync.Mutex
	uncommitted register
	committed   register

	mergeMu        sync.Mutex
	mergeInventory map[segment.Id]struct{}
	mergeGroup     errgroup.Group

	lastOpstamp atomic.Uint64
}

// New creates an Updater rooted at dir and starts its single-threaded task
// loop. telemetryStore may be nil, in which case commit history is not
// recorded; an ancillary failure, including a missing sidecar, never
// aborts the primary operation.
func New(dir *directory.Directory, mergeCfg config.MergePolicyConfig, telemetryStore *telemetry.Store) *Updater {
	u := &Updater{
		dir:            dir,
		mergeCfg:       mergeCfg,
		mergePolicy:    LogSizePolicy{cfg: mergeCfg},
		telemetry:      telemetryStore,
		tasks:          make(chan func(), 64),
		uncommitted:    make(register),
		committed:      make(register),
		mergeInventory: make(map[segment.Id]struct{}),
	}
	u.mergeGroup.SetLimit(mergePoolSize)
	go u.run()
	return u
}

// mergePoolSize bounds how many CPU-bound K-way merges run concurrently.
const mergePoolSize = 4

func (u *Updater) run() {
	for task := range u.tasks {
		task()
	}
}

// submit enqueues fn on the updater's single task goroutine and blocks
// until it completes, returning its error. A future-like contract
// realized as a synchronous call over an internally asynchronous queue:
// the caller blocks, but register mutation always happens on the one
// owning goroutine.
func (u *Updater) submit(fn func() error) error {
	result := make(chan error, 1)
	u.tasks <- func() { result <- fn() }
	return <-result
}

// ScheduleAddSegment inserts entry into the uncommitted register and
// reconsiders merges.
func (u *Updater) ScheduleAddSegment(entry SegmentEntry) error {
	return u.submit(func() error {
		if u.killed.Load() {
			return nil
		}
		u.mu.Lock()
		u.uncommitted[entry.Meta.SegmentId] = entry
		u.mu.Unlock()
		u.reconsiderMerges(false)
		return nil
	})
}

// ScheduleCommit moves every uncommitted entry into committed, writes
// meta.json atomically, runs GC, and reconsiders merges. opstamp is
// assigned by the caller (the writer's Stamper). A commit with no
// intervening adds moves an empty register and rewrites meta.json with the
// same segment set under the opstamp passed in; it does not keep the
// previous opstamp.
func (u *Updater) ScheduleCommit(opstamp uint64, payload string) error {
	return u.submit(func() error {
		if u.killed.Load() {
			return nil
		}
		u.mu.Lock()
		for id, entry := range u.uncommitted {
			u.committed[id] = entry
		}
		u.uncommitted = make(register)
		committedEntries := u.committed.entries()
		u.mu.Unlock()

		if err := u.writeIndexMeta(opstamp, payload, committedEntries); err != nil {
			return err
		}
		u.lastOpstamp.Store(opstamp)

		if u.telemetry != nil {
			totalRows := 0
			for _, e := range committedEntries {
				totalRows += int(e.Info.VectorCount)
			}
			if err := u.telemetry.RecordCommit(opstamp, time.Now().Unix(), len(committedEntries), totalRows, payload); err != nil {
				slog.Warn("telemetry record commit failed", "err", err)
			}
		}

		if err := u.runGC(); err != nil {
			slog.Warn("post-commit gc failed", "err", err)
		}
		u.reconsiderMerges(true)
		return nil
	})
}

// LastOpstamp returns the most recently committed opstamp.
func (u *Updater) LastOpstamp() uint64 { return u.lastOpstamp.Load() }

// ScheduleGarbageCollect computes the live file set (meta.json plus every
// tracked SegmentMeta's files) and deletes anything the directory manages
// outside it.
func (u *Updater) ScheduleGarbageCollect() error {
	return u.submit(func() error {
		if u.killed.Load() {
			return nil
		}
		return u.runGC()
	})
}

func (u *Updater) runGC() error {
	live := map[string]struct{}{invindex.IndexMetaFileName: {}}
	for name := range segment.LiveSegmentFiles(false) {
		live[name] = struct{}{}
	}
	for name := range segment.LiveSegmentFiles(true) {
		live[name] = struct{}{}
	}
	_, err := u.dir.GarbageCollect(live)
	return err
}

func (u *Updater) writeIndexMeta(opstamp uint64, payload string, entries []SegmentEntry) error {
	records := make([]invindex.SegmentRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.record())
	}
	meta := &invindex.IndexMeta{Segments: records, Opstamp: opstamp, Payload: payload}
	data, err := meta.Marshal()
	if err != nil {
		return err
	}
	return u.dir.AtomicWrite(invindex.IndexMetaFileName, data)
}

// ScheduleRollback discards every uncommitted segment, releasing its
// census handle so a subsequent GC reclaims its files. The committed
// register is untouched.
func (u *Updater) ScheduleRollback() error {
	return u.submit(func() error {
		if u.killed.Load() {
			return nil
		}
		u.mu.Lock()
		for _, e := range u.uncommitted {
			e.Meta.Release()
		}
		u.uncommitted = make(register)
		u.mu.Unlock()
		return u.runGC()
	})
}

// Kill stops the updater from acting on further register mutations; all
// subsequently submitted tasks become no-ops. Already in-flight merges
// complete but their results are discarded by endMerge.
func (u *Updater) Kill() {
	u.killed.Store(true)
}

// WaitMergingThread blocks until every in-flight merge has completed.
func (u *Updater) WaitMergingThread() {
	u.mergeGroup.Wait()
}

// Close stops the task loop. Call only after WaitMergingThread and once no
// further submissions will be made.
func (u *Updater) Close() {
	close(u.tasks)
}

// reconsiderMerges asks the merge policy for candidates over the named
// register and dispatches each as a background merge, skipping segments
// already in the merge inventory. fromCommitted selects which register's
// entries feed the policy and which register the merged result replaces
// into: a merge group is drawn from one register only, never mixed.
func (u *Updater) reconsiderMerges(fromCommitted bool) {
	u.mu.Lock()
	var entries []SegmentEntry
	if fromCommitted {
		entries = u.committed.entries()
	} else {
		entries = u.uncommitted.entries()
	}
	u.mu.Unlock()

	u.mergeMu.Lock()
	var eligible []SegmentEntry
	for _, e := range entries {
		if _, busy := u.mergeInventory[e.Meta.SegmentId]; !busy {
			eligible = append(eligible, e)
		}
	}
	u.mergeMu.Unlock()

	for _, group := range u.mergePolicy.Plan(eligible) {
		if len(group) < 2 {
			continue
		}
		u.dispatchMerge(group, fromCommitted)
	}
}

func (u *Updater) dispatchMerge(ids []segment.Id, fromCommitted bool) {
	u.mergeMu.Lock()
	for _, id := range ids {
		u.mergeInventory[id] = struct{}{}
	}
	u.mergeMu.Unlock()

	// TryGo keeps the updater goroutine from blocking on a full merge
	// pool; a declined group is re-planned after the next end_merge runs
	// reconsiderMerges.
	started := u.mergeGroup.TryGo(func() error {
		defer func() {
			u.mergeMu.Lock()
			for _, id := range ids {
				delete(u.mergeInventory, id)
			}
			u.mergeMu.Unlock()
		}()

		merged, inputs, err := u.executeMerge(ids, fromCommitted)
		if err != nil {
			slog.Error("segment merge failed, inputs left in place", "err", err)
			return nil
		}

		return u.submit(func() error {
			if u.killed.Load() {
				// Kill flag set before endMerge: the finished merge is
				// discarded and its inputs stay in place.
				return nil
			}
			return u.endMerge(merged, inputs, fromCommitted)
		})
	})
	if !started {
		u.mergeMu.Lock()
		for _, id := range ids {
			delete(u.mergeInventory, id)
		}
		u.mergeMu.Unlock()
	}
}

// endMerge replaces the input entries with the merged entry in the same
// register they came from, rewriting meta.json if that register is
// committed, then runs GC and reconsiders merges again.
func (u *Updater) endMerge(merged SegmentEntry, inputs []segment.Id, fromCommitted bool) error {
	u.mu.Lock()
	reg := u.uncommitted
	if fromCommitted {
		reg = u.committed
	}
	for _, id := range inputs {
		if _, ok := reg[id]; !ok {
			// An input left this register while the merge ran (a commit
			// moved it): the merged result is discarded.
			u.mu.Unlock()
			merged.Meta.Release()
			return nil
		}
	}
	for _, id := range inputs {
		if e, ok := reg[id]; ok {
			e.Meta.Release()
			delete(reg, id)
		}
	}
	reg[merged.Meta.SegmentId] = merged
	committedEntries := u.committed.entries()
	u.mu.Unlock()

	if fromCommitted {
		if err := u.writeIndexMeta(u.lastOpstamp.Load(), "", committedEntries); err != nil {
			return err
		}
	}
	if err := u.runGC(); err != nil {
		slog.Warn("post-merge gc failed", "err", err)
	}
	u.reconsiderMerges(fromCommitted)
	return nil
}

// executeMerge performs the physical K-way merge: open
// every input segment, merge per-dimension postings across them, write the
// merged result as a fresh segment, and return its entry plus the input
// ids to retire.
func (u *Updater) executeMerge(ids []segment.Id, fromCommitted bool) (SegmentEntry, []segment.Id, error) {
	u.mu.Lock()
	reg := u.uncommitted
	if fromCommitted {
		reg = u.committed
	}
	entries := make([]SegmentEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := reg[id]
		if !ok {
			u.mu.Unlock()
			return SegmentEntry{}, nil, fmt.Errorf("updater: segment %s vanished before merge", id)
		}
		entries = append(entries, e)
	}
	u.mu.Unlock()

	merged, err := MergeSegments(u.dir, entries)
	if err != nil {
		return SegmentEntry{}, nil, err
	}
	return merged, ids, nil
}
