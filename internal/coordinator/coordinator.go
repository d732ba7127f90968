package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/partigroup/internal/assignment"
	"github.com/arloliu/partigroup/internal/election"
	"github.com/arloliu/partigroup/internal/heartbeat"
	"github.com/arloliu/partigroup/internal/hooks"
	"github.com/arloliu/partigroup/internal/membership"
	"github.com/arloliu/partigroup/types"
)

// Rebalance reasons, reported to metrics.
const (
	ReasonLeaderElected     = "leader_elected"
	ReasonMembershipChanged = "membership_changed"
	ReasonResync            = "resync"
)

// Coordinator runs the coordination protocol for one member of one group.
type Coordinator struct {
	groupID  string
	memberID string
	settings Settings
	strategy types.AssignmentStrategy
	store    *assignment.Manager
	logger   types.Logger
	metrics  types.MetricsCollector
	hooks    types.Hooks

	member   *heartbeat.GroupMember
	members  *membership.Manager
	selector *election.LeaderSelector
	listener *assignment.Listener

	trigger chan string
	role    atomic.Int32
	events  *hooks.Serial

	mu          sync.Mutex
	leaderCtx   context.Context
	lastMembers []string
	version     int64
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func newCoordinator(f *Factory, groupID, memberID string, lock types.LeaseLock, logger types.Logger, onPartitions assignment.ChangeFunc) *Coordinator {
	s := f.settings
	c := &Coordinator{
		groupID:  groupID,
		memberID: memberID,
		settings: s,
		strategy: f.strategy,
		store:    f.assignments,
		logger:   logger,
		metrics:  f.metrics,
		hooks:    f.hooks,
		trigger:  make(chan string, 1),
	}

	c.member = heartbeat.New(f.heartbeatKV, groupID, memberID, s.HeartbeatInterval, logger)
	c.member.SetMetrics(f.metrics)
	c.member.SetOperationTimeout(s.OperationTimeout)

	c.members = membership.New(f.heartbeatKV, groupID, s.MembershipPollInterval, c.onMembersChanged, logger)
	c.members.SetMetrics(f.metrics)
	c.members.SetOperationTimeout(s.OperationTimeout)
	if s.WatchMembership {
		c.members.EnableWatch()
	}

	c.selector = election.NewLeaderSelector(lock, memberID, s.LeaderPollInterval, s.LeaseRenewInterval, logger)

	c.listener = assignment.NewListener(f.assignments, groupID, memberID, s.AssignmentPollInterval, onPartitions, logger)
	c.listener.SetOperationTimeout(s.OperationTimeout)

	return c
}

// Start announces the member and starts every background loop.
//
// The coordinator outlives ctx: only its values are inherited, and the
// loops run until Stop.
//
// Returns:
//   - error: types.ErrAlreadyStarted
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return types.ErrAlreadyStarted
	}

	if err := c.member.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.started = true
	c.events = hooks.NewSerial()

	// Start errors below only report double starts, impossible on fresh components.
	_ = c.listener.Start(runCtx)
	_ = c.members.Start(runCtx)
	_ = c.selector.Start(runCtx, c.onSelected, c.onRemoved)

	c.wg.Go(func() { c.rebalanceLoop(runCtx) })

	c.logger.Info("coordinator started", "group", c.groupID, "member", c.memberID, "partitions", c.settings.PartitionCount)

	return nil
}

// Stop shuts the member down: the listener stops first so no partition
// callback runs after Stop returns, then membership tracking, then the
// selector (releasing the lease), and finally the heartbeat key is deleted.
// Queued leadership and error hooks are drained before Stop returns, unless
// Stop is called from inside one of them with the context it received.
//
// Stop is idempotent.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	wasStarted := c.started
	c.mu.Unlock()

	if !wasStarted {
		return nil
	}

	errs := []error{
		c.listener.Stop(),
		c.members.Stop(),
		c.selector.Stop(),
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for coordinator goroutines: %w", ctx.Err()))
	}

	c.events.Close()
	if err := c.events.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for coordinator hooks: %w", err))
	}

	errs = append(errs, c.member.Stop())
	c.logger.Info("coordinator stopped", "group", c.groupID, "member", c.memberID)

	return errors.Join(errs...)
}

// GroupID returns the group id.
func (c *Coordinator) GroupID() string { return c.groupID }

// MemberID returns the member id.
func (c *Coordinator) MemberID() string { return c.memberID }

// IsLeader reports whether this member currently leads the group.
func (c *Coordinator) IsLeader() bool {
	return c.Role() == types.RoleLeader
}

// Role returns the member's current role.
func (c *Coordinator) Role() types.Role {
	return types.Role(c.role.Load())
}

// Members returns the last membership snapshot observed by this member.
func (c *Coordinator) Members() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.lastMembers)
}

func (c *Coordinator) onMembersChanged(_ context.Context, members []string) {
	c.mu.Lock()
	c.lastMembers = members
	c.mu.Unlock()

	c.logger.Info("group membership changed", "group", c.groupID, "members", members)

	if c.IsLeader() {
		c.requestRebalance(ReasonMembershipChanged)
	}
}

func (c *Coordinator) onSelected(leaderCtx context.Context) {
	c.mu.Lock()
	c.leaderCtx = leaderCtx
	c.mu.Unlock()

	c.role.Store(int32(types.RoleLeader))
	c.metrics.RecordLeadershipChange(c.groupID, types.RoleLeader)
	c.notifyLeadership(types.RoleLeader)

	c.requestRebalance(ReasonLeaderElected)
}

func (c *Coordinator) onRemoved() {
	c.mu.Lock()
	c.leaderCtx = nil
	c.mu.Unlock()

	c.role.Store(int32(types.RoleFollower))
	c.metrics.RecordLeadershipChange(c.groupID, types.RoleFollower)
	c.notifyLeadership(types.RoleFollower)
}

// requestRebalance queues a rebalance. A rebalance that is already queued
// absorbs the request, since every run reads a fresh membership snapshot.
func (c *Coordinator) requestRebalance(reason string) {
	select {
	case c.trigger <- reason:
	default:
	}
}

func (c *Coordinator) rebalanceLoop(ctx context.Context) {
	resync := time.NewTicker(c.settings.ResyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-c.trigger:
			c.rebalance(reason)
		case <-resync.C:
			if c.IsLeader() {
				c.rebalance(ReasonResync)
			}
		}
	}
}

// rebalance recomputes and writes the assignment of every live member.
// It runs only on the rebalance goroutine and only while leader.
func (c *Coordinator) rebalance(reason string) {
	c.mu.Lock()
	leaderCtx := c.leaderCtx
	c.mu.Unlock()

	if leaderCtx == nil || leaderCtx.Err() != nil {
		return
	}

	start := time.Now()
	err := c.writeAssignments(leaderCtx, reason)
	c.metrics.RecordRebalance(c.groupID, reason, time.Since(start).Seconds(), err == nil)

	if err != nil {
		if leaderCtx.Err() != nil {
			c.logger.Info("rebalance abandoned, leadership ended", "group", c.groupID, "reason", reason)
			return
		}
		c.logger.Error("rebalance failed", "group", c.groupID, "reason", reason, "error", err)
		c.notifyError(err)
	}
}

func (c *Coordinator) writeAssignments(ctx context.Context, reason string) error {
	members, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		c.logger.Debug("no live members, skipping rebalance", "group", c.groupID)
		return nil
	}

	computed, err := c.strategy.Assign(members, c.settings.PartitionCount)
	if err != nil {
		return fmt.Errorf("assignment strategy failed: %w", err)
	}

	c.detectDrift(ctx, computed)

	c.mu.Lock()
	c.version++
	version := c.version
	c.mu.Unlock()

	now := time.Now().UTC()
	var errs []error
	for _, member := range members {
		record := types.Assignment{
			Partitions: computed[member].Slice(),
			Leader:     c.memberID,
			Version:    version,
			AssignedAt: now,
		}

		opCtx, cancel := context.WithTimeout(ctx, c.settings.OperationTimeout)
		err := c.store.WriteAssignment(opCtx, c.groupID, member, record)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}

	level := c.logger.Info
	if reason == ReasonResync {
		level = c.logger.Debug
	}
	level("assignments written", "group", c.groupID, "reason", reason, "version", version, "members", members, "failed", len(errs))

	return errors.Join(errs...)
}

// snapshot returns the live members with a direct scan, falling back to the
// last polled snapshot when the scan fails.
func (c *Coordinator) snapshot(ctx context.Context) ([]string, error) {
	scanCtx, cancel := context.WithTimeout(ctx, c.settings.OperationTimeout)
	members, err := c.members.Members(scanCtx)
	cancel()
	if err == nil {
		return members, nil
	}

	fallback := c.Members()
	if fallback == nil {
		return nil, fmt.Errorf("no membership snapshot available: %w", err)
	}
	c.logger.Warn("membership scan failed, using last snapshot", "group", c.groupID, "error", err)

	return fallback, nil
}

// detectDrift compares the stored records with the computed assignment,
// reporting records of members that are no longer live and records that
// disagree with the computation. It also moves the version counter past
// any version written by a previous leader.
func (c *Coordinator) detectDrift(ctx context.Context, computed map[string]types.PartitionSet) {
	opCtx, cancel := context.WithTimeout(ctx, c.settings.OperationTimeout)
	existing, err := c.store.ReadAllAssignments(opCtx, c.groupID)
	cancel()
	if err != nil {
		c.logger.Warn("failed to read existing assignments", "group", c.groupID, "error", err)
		return
	}

	var stale, mismatched int
	var highest int64
	for member, record := range existing {
		highest = max(highest, record.Version)

		want, live := computed[member]
		switch {
		case !live:
			if len(record.Partitions) > 0 {
				stale++
			}
		case !want.Equal(record.PartitionSet()):
			mismatched++
		}
	}

	c.mu.Lock()
	c.version = max(c.version, highest)
	c.mu.Unlock()

	if stale+mismatched > 0 {
		c.metrics.RecordAssignmentDrift(c.groupID, stale, mismatched)
		c.logger.Debug("assignment drift detected", "group", c.groupID, "stale", stale, "mismatched", mismatched)
	}
}

// notifyLeadership queues the leadership hook. Role changes reach the hook
// in the order they happened.
func (c *Coordinator) notifyLeadership(role types.Role) {
	c.events.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.settings.LeaseRenewInterval)
		defer cancel()

		if err := c.hooks.OnLeadershipChanged(ctx, c.groupID, role); err != nil {
			c.logger.Warn("leadership hook failed", "group", c.groupID, "error", err)
		}
	})
}

func (c *Coordinator) notifyError(err error) {
	c.events.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.settings.LeaseRenewInterval)
		defer cancel()

		if hookErr := c.hooks.OnError(ctx, err); hookErr != nil {
			c.logger.Warn("error hook failed", "group", c.groupID, "error", hookErr)
		}
	})
}
