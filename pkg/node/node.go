// Package node runs a Nimbus dev node.
//
// The Node ties together all components:
// - the state backend and world
// - the runtime with the native program registry
// - the receipt store
// - the gateway over HTTP and gRPC
// - a block producer that advances the current block on a timer
//
// The node owns the lifecycle of these components. New opens storage and
// applies genesis, so a node that is never started can still execute
// transactions; Start launches the producer and the gateways.
package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/crypto"
	"github.com/fortiblox/X1-Nimbus/pkg/gateway"
	"github.com/fortiblox/X1-Nimbus/pkg/programs"
	"github.com/fortiblox/X1-Nimbus/pkg/receipts"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Node errors.
var (
	ErrAlreadyRunning     = errors.New("node is already running")
	ErrClosed             = errors.New("node is closed")
	ErrConfigInvalid      = errors.New("invalid node configuration")
	ErrDeploymentConflict = errors.New("deployment conflicts with state")
)

// Config holds node configuration.
type Config struct {
	// DataDir is the root directory for all node data.
	DataDir string

	// Backend selects the world-state backend.
	Backend state.BackendConfig

	// Runtime configures execution.
	Runtime runtime.Config

	// Registry holds the program kinds that may be deployed. Defaults to
	// the native programs.
	Registry *runtime.Registry

	// ReceiptsEnabled stores a receipt for every executed transaction.
	ReceiptsEnabled bool

	// Receipts configures the receipt store.
	Receipts receipts.Config

	// GatewayEnabled serves the gateway while the node runs.
	GatewayEnabled bool

	// Gateway configures the gateway servers.
	Gateway gateway.Config

	// BlockInterval is how often a new block starts.
	BlockInterval time.Duration

	// Genesis balances, applied only to an empty state.
	Genesis map[types.Address]*uint256.Int

	// Deployments are programs deployed at startup if absent.
	Deployments map[types.Address]string

	// Clock supplies block timestamps. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives node logs and is handed to every component.
	Logger zerolog.Logger

	// Callbacks for monitoring.
	OnBlock func(b runtime.BlockInfo)
	OnError func(err error)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:         "./nimbus-data",
		Backend:         state.BackendConfig{Kind: state.BackendBadger, SyncWrites: true},
		Runtime:         runtime.DefaultConfig(),
		ReceiptsEnabled: true,
		GatewayEnabled:  true,
		Gateway:         gateway.DefaultConfig(),
		BlockInterval:   2 * time.Second,
		Logger:          zerolog.Nop(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	onDisk := c.Backend.Kind != state.BackendMemory && c.Backend.Kind != ""
	if c.DataDir == "" && (c.ReceiptsEnabled || onDisk) {
		return fmt.Errorf("%w: data directory is required", ErrConfigInvalid)
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("%w: block interval must be positive", ErrConfigInvalid)
	}
	for addr := range c.Deployments {
		if addr.IsVoid() {
			return fmt.Errorf("%w: deployment at the void address", ErrConfigInvalid)
		}
	}
	return nil
}

// Node is a running Nimbus dev node.
type Node struct {
	config Config
	logger zerolog.Logger

	// Core components
	world    *state.World
	rt       *runtime.Runtime
	receipts *receipts.BoltStore
	gateway  *gateway.Server
	svc      *gateway.Service

	// State management
	running   atomic.Bool
	closed    atomic.Bool
	startTime time.Time

	lastError   error
	lastErrorMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	blocksProduced atomic.Uint64
}

// New opens storage, applies genesis and deployments, and returns a node
// ready to execute transactions.
func New(config *Config) (*Node, error) {
	if config == nil {
		def := DefaultConfig()
		config = &def
	}
	if config.Registry == nil {
		config.Registry = programs.NewRegistry()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.BlockInterval == 0 {
		config.BlockInterval = DefaultConfig().BlockInterval
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		config: *config,
		logger: config.Logger.With().Str("component", "node").Logger(),
	}
	if err := n.initialize(); err != nil {
		n.closeStorage()
		return nil, err
	}
	return n, nil
}

// initialize sets up storage and the runtime.
func (n *Node) initialize() error {
	if n.config.DataDir != "" {
		if err := os.MkdirAll(n.config.DataDir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	bc := n.config.Backend
	if bc.Dir == "" {
		bc.Dir = n.config.DataDir
	}
	backend, err := state.Open(bc)
	if err != nil {
		return fmt.Errorf("open state backend: %w", err)
	}
	n.world = state.NewWorld(backend, n.config.Logger)

	rc := n.config.Runtime
	rc.Logger = n.config.Logger
	n.rt = runtime.New(n.world, n.config.Registry, rc)

	block := runtime.BlockInfo{Time: n.config.Clock().UnixMilli()}
	if n.config.ReceiptsEnabled {
		sc := n.config.Receipts
		if sc.Path == "" {
			def := receipts.DefaultConfig(filepath.Join(n.config.DataDir, "receipts.db"))
			def.NoSync = sc.NoSync
			sc = def
		}
		sc.Logger = n.config.Logger
		store, err := receipts.Open(sc)
		if err != nil {
			return fmt.Errorf("open receipt store: %w", err)
		}
		n.receipts = store
		n.rt.SetReceiptSink(store)
		n.rt.SetSequence(store.LatestSeq())

		last, ok, err := store.LastBlock()
		if err != nil {
			return fmt.Errorf("read last block: %w", err)
		}
		if ok {
			block = last
		}
		block.Height = max(block.Height, store.LatestHeight())
	}
	n.rt.SetBlock(block)

	if err := n.applyGenesis(); err != nil {
		return err
	}
	if err := n.applyDeployments(); err != nil {
		return err
	}

	var rr gateway.ReceiptReader
	if n.receipts != nil {
		rr = n.receipts
	}
	n.svc = gateway.NewService(n.rt, rr, n.config.Logger)
	return nil
}

func (n *Node) applyGenesis() error {
	if len(n.config.Genesis) == 0 {
		return nil
	}
	empty, err := n.world.Empty()
	if err != nil {
		return fmt.Errorf("inspect state: %w", err)
	}
	if !empty {
		n.logger.Debug().Msg("state exists, skipping genesis")
		return nil
	}
	return n.rt.Genesis(n.config.Genesis)
}

func (n *Node) applyDeployments() error {
	for addr, kind := range n.config.Deployments {
		existing, ok, err := n.rt.Deployment(addr)
		if err != nil {
			return fmt.Errorf("read deployment %s: %w", addr.Hex(), err)
		}
		if ok {
			if existing != kind {
				return fmt.Errorf("%w: %s runs %q, configured %q", ErrDeploymentConflict, addr.Hex(), existing, kind)
			}
			continue
		}
		if err := n.rt.Deploy(addr, kind); err != nil {
			return err
		}
	}
	return nil
}

// Start begins block production and, if enabled, serves the gateway. It
// returns once everything is launched.
func (n *Node) Start(ctx context.Context) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if n.running.Swap(true) {
		return ErrAlreadyRunning
	}

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.startTime = time.Now()

	n.wg.Add(1)
	go n.produceLoop()

	if n.config.GatewayEnabled {
		gc := n.config.Gateway
		gc.Logger = n.config.Logger
		n.gateway = gateway.New(gc, n.svc)

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.gateway.Start(n.ctx); err != nil {
				n.reportError(fmt.Errorf("gateway: %w", err))
			}
		}()

		if gc.GRPCAddr != "" {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				if err := gateway.ServeGRPC(n.ctx, gc.GRPCAddr, n.svc); err != nil {
					n.reportError(fmt.Errorf("gateway gRPC: %w", err))
				}
			}()
		}
	}

	n.logger.Info().
		Uint64("height", n.rt.Block().Height).
		Dur("block_interval", n.config.BlockInterval).
		Bool("gateway", n.config.GatewayEnabled).
		Msg("node started")
	return nil
}

// produceLoop advances the block every BlockInterval.
func (n *Node) produceLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.Advance()
		}
	}
}

// Advance closes the current block and starts the next one. With receipts
// enabled the new block is persisted so a restarted node continues the same
// hash chain.
func (n *Node) Advance() runtime.BlockInfo {
	next := NextBlock(n.rt.Block(), n.config.Clock())
	n.rt.SetBlock(next)
	n.blocksProduced.Add(1)
	if n.receipts != nil {
		if err := n.receipts.PutBlock(next); err != nil {
			n.reportError(fmt.Errorf("persist block: %w", err))
		}
	}

	n.logger.Debug().Uint64("height", next.Height).Msg("block")
	if n.config.OnBlock != nil {
		n.config.OnBlock(next)
	}
	return next
}

// NextBlock returns the block following prev, closed at now. The hash of a
// closed block is BLAKE3 over its parent hash and its big-endian height.
func NextBlock(prev runtime.BlockInfo, now time.Time) runtime.BlockInfo {
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], prev.Height)
	h := crypto.Blake3Hash(prev.Hash.Raw(), height[:])
	return runtime.BlockInfo{
		Height: prev.Height + 1,
		Hash:   types.NewBytes(h[:]...),
		Time:   now.UnixMilli(),
	}
}

// Stop stops block production and the gateway, then closes storage. Stop
// on a node that was never started only closes storage.
func (n *Node) Stop() error {
	if n.closed.Swap(true) {
		return ErrClosed
	}

	if n.running.Load() {
		if n.cancel != nil {
			n.cancel()
		}
		n.wg.Wait()
		n.running.Store(false)
	}

	err := n.closeStorage()
	n.logger.Info().Uint64("height", n.rt.Block().Height).Msg("node stopped")
	return err
}

// closeStorage closes all storage backends.
func (n *Node) closeStorage() error {
	var errs []error
	if n.receipts != nil {
		if err := n.receipts.Close(); err != nil && !errors.Is(err, receipts.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if n.world != nil {
		if err := n.world.Close(); err != nil && !errors.Is(err, state.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Runtime returns the node's runtime.
func (n *Node) Runtime() *runtime.Runtime {
	return n.rt
}

// Service returns the transport-independent gateway service.
func (n *Node) Service() *gateway.Service {
	return n.svc
}

// Receipts returns the receipt store, or nil when disabled.
func (n *Node) Receipts() *receipts.BoltStore {
	return n.receipts
}

// World returns the world state.
func (n *Node) World() *state.World {
	return n.world
}

// Status returns the current node status.
func (n *Node) Status() *Status {
	st := &Status{
		Block:          n.rt.Block(),
		IsRunning:      n.running.Load(),
		Commits:        n.world.Commits(),
		BlocksProduced: n.blocksProduced.Load(),
		LastError:      n.getLastError(),
	}
	if st.IsRunning {
		st.Uptime = time.Since(n.startTime)
	}
	if n.receipts != nil {
		st.Receipts = n.receipts.Count()
	}
	if !n.closed.Load() {
		if root, err := n.world.Root(); err == nil {
			st.Root = root
		}
	}
	if n.gateway != nil {
		st.GatewayAddr = n.config.Gateway.Addr
	}
	return st
}

// Status contains the current node status.
type Status struct {
	// Block is the block transactions currently execute in.
	Block runtime.BlockInfo

	// Root is the state root.
	Root types.Hash

	// IsRunning indicates if the node is running.
	IsRunning bool

	// Uptime is how long the node has been running.
	Uptime time.Duration

	// Commits is the number of state batches committed since opening.
	Commits uint64

	// BlocksProduced counts blocks since start.
	BlocksProduced uint64

	// Receipts is the number of stored receipts.
	Receipts uint64

	// GatewayAddr is the gateway address if enabled.
	GatewayAddr string

	// LastError is the most recent error encountered.
	LastError error
}

func (n *Node) reportError(err error) {
	n.logger.Error().Err(err).Msg("component failed")
	n.setLastError(err)
	if n.config.OnError != nil {
		n.config.OnError(err)
	}
}

// setLastError safely sets the last error.
func (n *Node) setLastError(err error) {
	n.lastErrorMu.Lock()
	n.lastError = err
	n.lastErrorMu.Unlock()
}

// getLastError safely gets the last error.
func (n *Node) getLastError() error {
	n.lastErrorMu.RLock()
	defer n.lastErrorMu.RUnlock()
	return n.lastError
}
