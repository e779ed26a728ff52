// Package cluster lets several server nodes agree on one loop epoch through Raft.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(SetEpochCommand{})
}

// ClusterState represents the shared state across all cluster nodes.
type ClusterState struct {
	// EpochUnixNano is the agreed loop epoch; zero until one is set.
	EpochUnixNano int64
	// SetBy is the node that proposed the agreed epoch.
	SetBy string
}

// HasEpoch reports whether an epoch has been agreed.
func (s ClusterState) HasEpoch() bool {
	return s.EpochUnixNano != 0
}

// Epoch returns the agreed epoch.
func (s ClusterState) Epoch() time.Time {
	return time.Unix(0, s.EpochUnixNano)
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandSetEpoch proposes the loop epoch. The first one applied wins.
	CommandSetEpoch CommandType = 1
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// SetEpochCommand proposes an epoch.
type SetEpochCommand struct {
	UnixNano int64
	NodeID   string
}

// EpochFSM implements the raft.FSM interface for the shared epoch.
type EpochFSM struct {
	mu     sync.RWMutex
	state  ClusterState
	logger *slog.Logger
}

// NewEpochFSM creates a new EpochFSM.
func NewEpochFSM(logger *slog.Logger) *EpochFSM {
	return &EpochFSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM.
func (f *EpochFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandSetEpoch:
		return f.applySetEpoch(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

// applySetEpoch records the epoch unless one is already set.
func (f *EpochFSM) applySetEpoch(data any) any {
	setCmd, ok := data.(SetEpochCommand)
	if !ok {
		return fmt.Errorf("invalid set epoch command data")
	}

	if setCmd.UnixNano == 0 {
		return fmt.Errorf("epoch must be non-zero")
	}

	if f.state.HasEpoch() {
		f.logger.Debug("epoch already set, ignoring proposal",
			"proposed_by", setCmd.NodeID,
			"set_by", f.state.SetBy,
		)
		return f.state
	}

	f.state = ClusterState{EpochUnixNano: setCmd.UnixNano, SetBy: setCmd.NodeID}
	f.logger.Info("epoch agreed", "epoch", f.state.Epoch().UTC(), "set_by", f.state.SetBy)
	return f.state
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *EpochFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &fsmSnapshot{state: f.state}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *EpochFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state ClusterState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored FSM state from snapshot", "has_epoch", state.HasEpoch(), "set_by", state.SetBy)
	return nil
}

// GetState returns a copy of the current FSM state.
func (f *EpochFSM) GetState() ClusterState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.state
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state ClusterState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
