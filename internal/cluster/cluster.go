package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

// ErrNotLeader is returned when a proposal is made on a follower.
var ErrNotLeader = errors.New("not the raft leader")

// Manager runs this node's Raft member and exposes the agreed loop epoch.
// Until the cluster has agreed on an epoch, Epoch returns the local one.
type Manager struct {
	config     Config
	localEpoch time.Time
	raft       *raft.Raft
	fsm        *EpochFSM
	transport  *raft.NetworkTransport
	logger     *slog.Logger
	mu         sync.RWMutex
	shutdown   bool
}

// NewManager creates a new cluster manager. localEpoch is the epoch this
// node proposes and uses until the cluster agrees.
func NewManager(config Config, localEpoch time.Time, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{
		config:     config,
		localEpoch: localEpoch,
		fsm:        NewEpochFSM(logger),
		logger:     logger,
	}, nil
}

// Start initializes and starts the Raft cluster.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.raft != nil {
		return fmt.Errorf("cluster already started")
	}

	raftConfig := raft.DefaultConfig()
	// Use bind address as LocalID for consistency with bootstrap configuration
	raftConfig.LocalID = raft.ServerID(m.config.BindAddr)
	raftConfig.HeartbeatTimeout = m.config.HeartbeatTimeout
	raftConfig.ElectionTimeout = m.config.ElectionTimeout
	raftConfig.LeaderLeaseTimeout = m.config.HeartbeatTimeout
	raftConfig.SnapshotInterval = m.config.SnapshotInterval
	raftConfig.SnapshotThreshold = m.config.SnapshotThreshold
	raftConfig.Logger = raftLogger(m.logger, m.config.Verbose)

	// The epoch lives only as long as the cluster does
	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()
	snapshotStore := raft.NewInmemSnapshotStore()

	addr, err := net.ResolveTCPAddr("tcp", m.config.BindAddr)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.config.BindAddr, addr, 3, 10*time.Second, nil)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	m.transport = transport

	r, err := raft.NewRaft(raftConfig, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		transport.Close()
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: make([]raft.Server, 0, len(m.config.Peers)),
	}

	for _, peer := range m.config.Peers {
		// Use peer address as both ID and address for simplicity
		configuration.Servers = append(configuration.Servers, raft.Server{
			ID:       raft.ServerID(peer),
			Address:  raft.ServerAddress(peer),
			Suffrage: raft.Voter,
		})
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		m.logger.Error("failed to bootstrap cluster", "error", err)
		// Continue anyway - node might be joining existing cluster
	}

	m.logger.Info("cluster started",
		"node_id", m.config.RaftID,
		"bind", m.config.BindAddr,
		"peers", len(m.config.Peers),
		"local_epoch", m.localEpoch.UTC(),
	)

	return nil
}

// ProposeEpoch submits an epoch to the cluster. Only the leader can propose.
// If an epoch was already agreed the proposal has no effect.
func (m *Manager) ProposeEpoch(epoch time.Time) error {
	m.mu.RLock()
	if m.shutdown {
		m.mu.RUnlock()
		return fmt.Errorf("cluster is shut down")
	}
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return fmt.Errorf("cluster not started")
	}

	if r.State() != raft.Leader {
		return ErrNotLeader
	}

	cmd := Command{
		Type: CommandSetEpoch,
		Data: SetEpochCommand{UnixNano: epoch.UnixNano(), NodeID: m.config.RaftID},
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	future := r.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if err, ok := future.Response().(error); ok {
		return fmt.Errorf("apply command: %w", err)
	}

	return nil
}

// Run proposes the local epoch whenever this node leads a cluster that has
// not agreed on one yet. It returns once an epoch is agreed or ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.ProposeInterval)
	defer ticker.Stop()

	for {
		if m.Agreed() {
			state := m.fsm.GetState()
			m.logger.Info("using cluster epoch",
				"epoch", state.Epoch().UTC(),
				"set_by", state.SetBy,
			)
			return nil
		}

		if m.IsLeader() {
			if err := m.ProposeEpoch(m.localEpoch); err != nil && !errors.Is(err, ErrNotLeader) {
				m.logger.Warn("failed to propose epoch", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForEpoch blocks until an epoch is agreed or ctx is canceled.
func (m *Manager) WaitForEpoch(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.Agreed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AgreedEpoch blocks until the cluster has agreed on an epoch and returns
// it. An agreed epoch never changes for the life of the cluster.
func (m *Manager) AgreedEpoch(ctx context.Context) (time.Time, error) {
	if err := m.WaitForEpoch(ctx); err != nil {
		return time.Time{}, err
	}
	return m.fsm.GetState().Epoch(), nil
}

// Epoch returns the agreed epoch, or the local one before agreement.
func (m *Manager) Epoch() time.Time {
	if state := m.fsm.GetState(); state.HasEpoch() {
		return state.Epoch()
	}
	return m.localEpoch
}

// Agreed reports whether the cluster has agreed on an epoch.
func (m *Manager) Agreed() bool {
	return m.fsm.GetState().HasEpoch()
}

// GetState returns the current FSM state.
func (m *Manager) GetState() ClusterState {
	return m.fsm.GetState()
}

// Status returns a summary for health reporting.
func (m *Manager) Status() map[string]any {
	state := m.fsm.GetState()
	return map[string]any{
		"node_id":      m.config.RaftID,
		"state":        m.State(),
		"leader":       m.LeaderAddr(),
		"peers":        len(m.config.Peers),
		"epoch_agreed": state.HasEpoch(),
		"epoch_set_by": state.SetBy,
		"epoch":        m.Epoch().UTC().Format(time.RFC3339Nano),
	}
}

// IsLeader returns true if this node is the Raft leader.
func (m *Manager) IsLeader() bool {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return false
	}

	return r.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return ""
	}

	leaderAddr, _ := r.LeaderWithID()
	return string(leaderAddr)
}

// State returns the current Raft state.
func (m *Manager) State() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return "NotStarted"
	}

	switch r.State() {
	case raft.Follower:
		return "Follower"
	case raft.Candidate:
		return "Candidate"
	case raft.Leader:
		return "Leader"
	case raft.Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// NodeID returns this node's Raft ID.
func (m *Manager) NodeID() string {
	return m.config.RaftID
}

// Shutdown gracefully shuts down the Raft cluster.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}

	m.shutdown = true

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			m.logger.Error("failed to shutdown raft", "error", err)
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}

	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Error("failed to close transport", "error", err)
			return fmt.Errorf("close transport: %w", err)
		}
	}

	m.logger.Info("cluster shut down")
	return nil
}
