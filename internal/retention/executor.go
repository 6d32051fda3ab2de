// Package retention implements C8: periodic age-based deletion of
// indexed records according to a set of per-source retention policies.
package retention

import (
	"context"
	"sync"
	"time"

	"logvault/internal/index"
	"logvault/internal/metrics"
	"logvault/pkg/types"

	apperrors "logvault/pkg/errors"

	"github.com/sirupsen/logrus"
)

// Deleter is whatever the executor sweeps against: a single Index
// Store or a Shard Router, both of which expose DeleteWhere.
type Deleter interface {
	DeleteWhere(filter index.DeleteFilter) (int, error)
}

// PolicyStore supplies the retention policies to apply. The HTTP layer's
// CRUD handlers write through the same store this executor reads from.
type PolicyStore interface {
	List() []types.RetentionPolicy
	Get(id string) (types.RetentionPolicy, bool)
}

// Executor runs retention sweeps on a schedule, or on demand via Apply.
type Executor struct {
	policies Deleter
	store    PolicyStore
	logger   *logrus.Logger
	interval time.Duration

	// sourceLocks serializes overlapping policies against the same
	// source while letting policies touching disjoint sources run in
	// parallel.
	mu          sync.Mutex
	sourceLocks map[string]*sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(deleter Deleter, store PolicyStore, interval time.Duration, logger *logrus.Logger) *Executor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Executor{
		policies:    deleter,
		store:       store,
		logger:      logger,
		interval:    interval,
		sourceLocks: make(map[string]*sync.Mutex),
		stopCh:      make(chan struct{}),
	}
}

// Run starts the periodic sweep loop; call Close to stop it.
func (ex *Executor) Run() {
	ex.wg.Add(1)
	go func() {
		defer ex.wg.Done()
		ticker := time.NewTicker(ex.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ex.stopCh:
				return
			case <-ticker.C:
				if err := ex.ApplyAll(context.Background()); err != nil {
					ex.logger.WithError(err).Warn("retention sweep failed")
				}
			}
		}
	}()
}

func (ex *Executor) Close() {
	close(ex.stopCh)
	ex.wg.Wait()
}

// ApplyAll runs every enabled policy. Policies touching disjoint source
// sets run concurrently; policies sharing a source serialize against
// each other via lockForSources.
func (ex *Executor) ApplyAll(ctx context.Context) error {
	policies := ex.store.List()
	effective := resolveOverlaps(policies)

	var wg sync.WaitGroup
	errCh := make(chan error, len(effective))
	for _, p := range effective {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ex.apply(ctx, p); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err // first error wins; the rest already logged by apply
	}
	return nil
}

// Apply runs a single policy by ID, regardless of overlap resolution
// (used by the manual "apply" API action).
func (ex *Executor) Apply(ctx context.Context, policyID string) (int, error) {
	p, ok := ex.store.Get(policyID)
	if !ok {
		return 0, apperrors.New(apperrors.CodeNotFound, "retention", "Apply", "policy not found: "+policyID)
	}
	if !p.Enabled {
		return 0, nil
	}
	return ex.deleteForPolicy(ctx, p)
}

func (ex *Executor) apply(ctx context.Context, p types.RetentionPolicy) error {
	if !p.Enabled {
		return nil
	}
	n, err := ex.deleteForPolicy(ctx, p)
	if err != nil {
		ex.logger.WithError(err).WithField("policy", p.ID).Warn("retention policy application failed")
		return err
	}
	ex.logger.WithFields(logrus.Fields{"policy": p.ID, "deleted": n}).Info("retention policy applied")
	return nil
}

func (ex *Executor) deleteForPolicy(ctx context.Context, p types.RetentionPolicy) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.Cancelled("retention", "Apply")
	}

	unlock := ex.lockForSources(p.ApplyToSources)
	defer unlock()

	cutoff := time.Now().AddDate(0, 0, -p.MaxAgeDays)
	n, err := ex.policies.DeleteWhere(index.DeleteFilter{Sources: p.ApplyToSources, Before: cutoff})
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.CodeFileIO, "retention", "Apply", "delete failed for policy "+p.ID)
	}
	metrics.RetentionDeletedTotal.WithLabelValues(p.ID).Add(float64(n))
	return n, nil
}

// lockForSources acquires (creating if needed) one mutex per named
// source, in sorted order to avoid deadlock between policies with
// overlapping source sets. An empty ApplyToSources ("all sources")
// locks a single sentinel key, since it always overlaps everything.
func (ex *Executor) lockForSources(sources []string) func() {
	keys := sources
	if len(keys) == 0 {
		keys = []string{"*"}
	}
	keys = sortedUnique(keys)

	ex.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		l, ok := ex.sourceLocks[k]
		if !ok {
			l = &sync.Mutex{}
			ex.sourceLocks[k] = l
		}
		locks = append(locks, l)
	}
	ex.mu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func sortedUnique(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// resolveOverlaps implements the Open Question decision: when two
// enabled policies both apply to the same source (including the
// "all sources" wildcard), the one with the smallest max_age_days wins
// for that source, since it is strictly the more aggressive deletion.
// Disjoint-source policies are returned unmodified and run independently.
func resolveOverlaps(policies []types.RetentionPolicy) []types.RetentionPolicy {
	bestForSource := map[string]types.RetentionPolicy{}
	var wildcard []types.RetentionPolicy

	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if len(p.ApplyToSources) == 0 {
			wildcard = append(wildcard, p)
			continue
		}
		for _, s := range p.ApplyToSources {
			cur, ok := bestForSource[s]
			if !ok || p.MaxAgeDays < cur.MaxAgeDays {
				bestForSource[s] = p
			}
		}
	}

	// The most aggressive wildcard policy also bounds every named-source
	// policy, since it deletes everything older regardless of source.
	if len(wildcard) > 0 {
		best := wildcard[0]
		for _, p := range wildcard[1:] {
			if p.MaxAgeDays < best.MaxAgeDays {
				best = p
			}
		}
		for s, p := range bestForSource {
			if best.MaxAgeDays < p.MaxAgeDays {
				bestForSource[s] = best
				_ = s
			}
		}
	}

	seen := map[string]struct{}{}
	var out []types.RetentionPolicy
	for _, p := range bestForSource {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for _, p := range wildcard {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
