package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
	"github.com/opd-ai/meshcall/call"
	"github.com/opd-ai/meshcall/config"
	"github.com/opd-ai/meshcall/messaging"
	"github.com/opd-ai/meshcall/room"
	"github.com/opd-ai/meshcall/transport/memory"
	"github.com/sirupsen/logrus"
)

// Node is one simulated participant.
type Node struct {
	Identity   string
	Controller *call.Controller
	Outbox     *messaging.Outbox
	Devices    *av.StaticDevices
	Sink       *room.MemorySink

	mu     sync.Mutex
	feeder *audio.OpusFeeder
}

// Close stops the node's controller. The node does not re-listen afterwards.
func (n *Node) Close() error {
	return n.Controller.Close()
}

// Sandbox owns the simulated network and its nodes.
type Sandbox struct {
	cfg     config.Config
	clock   clock.Clock
	network *memory.Network

	mu    sync.Mutex
	nodes map[string]*Node
}

// New creates an empty sandbox. A nil clk means the wall clock.
func New(cfg config.Config, clk clock.Clock) *Sandbox {
	if clk == nil {
		clk = clock.New()
	}
	return &Sandbox{
		cfg:     cfg,
		clock:   clk,
		network: memory.NewNetwork(),
		nodes:   make(map[string]*Node),
	}
}

// Network returns the shared simulated network.
func (s *Sandbox) Network() *memory.Network {
	return s.network
}

// AddNode creates a controller for identity and starts listening for calls.
func (s *Sandbox) AddNode(ctx context.Context, identity, displayName string) (*Node, error) {
	if identity == "" {
		return nil, fmt.Errorf("add node: %w: empty identity", call.ErrMissingCollaborator)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("add node %s: %w", identity, err)
	}
	if displayName == "" {
		displayName = shortName(identity)
	}

	s.mu.Lock()
	if _, ok := s.nodes[identity]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("add node %s: %w", identity, ErrNodeExists)
	}
	// Reserve the name so concurrent adds cannot race.
	s.nodes[identity] = nil
	s.mu.Unlock()

	node, err := s.newNode(identity, displayName)

	s.mu.Lock()
	if err != nil {
		delete(s.nodes, identity)
	} else {
		s.nodes[identity] = node
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Sandbox.AddNode",
		"identity": identity,
	}).Info("Node added")

	return node, nil
}

func (s *Sandbox) newNode(identity, displayName string) (*Node, error) {
	node := &Node{
		Identity: identity,
		Outbox:   messaging.NewOutbox(nil),
		Devices:  av.NewStaticDevices(),
		Sink:     room.NewMemorySink(),
	}
	c, err := call.New(call.Options{
		Identity:    identity,
		DisplayName: displayName,
		Endpoints:   s.network,
		Mesh:        s.network.NewMesh(),
		Devices:     node.Devices,
		Messages:    node.Outbox,
		Sink:        node.Sink,
		Config:      s.cfg,
		Clock:       s.clock,
		AutoListen:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("add node %s: %w", identity, err)
	}
	node.Controller = c
	return node, nil
}

// Node returns the node registered under identity.
func (s *Sandbox) Node(identity string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.nodes[identity]
	if node == nil {
		return nil, fmt.Errorf("%s: %w", identity, ErrUnknownNode)
	}
	return node, nil
}

// Identities lists every registered node, sorted.
func (s *Sandbox) Identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.nodes))
	for id, node := range s.nodes {
		if node != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RemoveNode closes and forgets a node.
func (s *Sandbox) RemoveNode(identity string) error {
	s.mu.Lock()
	node := s.nodes[identity]
	if node == nil {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", identity, ErrUnknownNode)
	}
	delete(s.nodes, identity)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Sandbox.RemoveNode",
		"identity": identity,
	}).Info("Node removed")

	return node.Close()
}

// Close removes every node.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	nodes := s.nodes
	s.nodes = make(map[string]*Node)
	s.mu.Unlock()

	var first error
	for _, node := range nodes {
		if node == nil {
			continue
		}
		if err := node.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetDevice drives one device intent of a node. Screen sharing goes through
// the controller directly since only the controller writes that signal.
func (s *Sandbox) SetDevice(ctx context.Context, identity, device string, on bool) error {
	node, err := s.Node(identity)
	if err != nil {
		return err
	}
	signals := node.Controller.Device()
	switch device {
	case "muted":
		signals.Muted.Set(on)
	case "camera":
		signals.CameraEnabled.Set(on)
	case "deafened":
		signals.Deafened.Set(on)
	case "screen":
		return node.Controller.ToggleScreenShare(ctx, on)
	default:
		return fmt.Errorf("%q: %w", device, ErrUnknownDevice)
	}
	return nil
}

func shortName(identity string) string {
	if i := strings.LastIndex(identity, ":"); i >= 0 && i < len(identity)-1 {
		return identity[i+1:]
	}
	return identity
}
