// Package relay implements the three role endpoints of the rig relay:
// admission through the gate, the first-frame credential handshake, and
// steady-state forwarding of array-framed batches through the protocol
// engine.
package relay

import (
	"errors"
	"sync"

	"github.com/rigshare/rigshare/internal/wire"
)

// Engine carries command batches between the sharer and controller
// sides. The relay never looks inside a batch; an engine that
// interprets the device protocol can be injected in place of the
// default PipeEngine.
type Engine interface {
	BindSharer() Port
	BindController() Port
}

// Port is one side's attachment to an Engine.
type Port interface {
	// Send delivers a batch toward the opposite party, blocking while
	// the peer's queue is full.
	Send(wire.Batch) error
	// Output streams batches sent by the opposite party. It is closed
	// when the port closes; buffered batches are still delivered.
	Output() <-chan wire.Batch
	// Close detaches the port. Closing the currently bound sharer port
	// voids the pairing and closes the bound controller port too.
	Close()
}

var (
	// ErrNoPeer means the opposite side is not bound; the batch was not
	// delivered.
	ErrNoPeer = errors.New("no peer bound")
	// ErrPortClosed means the port itself is closed.
	ErrPortClosed = errors.New("port closed")
)

const defaultPortQueue = 32

type portSide int

const (
	sideSharer portSide = iota
	sideController
)

// PipeEngine is the default Engine: a crossover pipe with a bounded
// queue per side. Rebinding a side replaces and closes the stale port;
// the gate makes genuine conflicts impossible, replacement keeps the
// engine consistent across fast reconnects.
type PipeEngine struct {
	mu         sync.Mutex
	queue      int
	sharer     *pipePort
	controller *pipePort
}

func NewPipeEngine(queue int) *PipeEngine {
	if queue <= 0 {
		queue = defaultPortQueue
	}
	return &PipeEngine{queue: queue}
}

func (e *PipeEngine) BindSharer() Port {
	e.mu.Lock()
	old := e.sharer
	p := e.newPort(sideSharer)
	e.sharer = p
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return p
}

func (e *PipeEngine) BindController() Port {
	e.mu.Lock()
	old := e.controller
	p := e.newPort(sideController)
	e.controller = p
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return p
}

func (e *PipeEngine) newPort(side portSide) *pipePort {
	return &pipePort{
		engine: e,
		side:   side,
		out:    make(chan wire.Batch, e.queue),
		done:   make(chan struct{}),
	}
}

type pipePort struct {
	engine  *PipeEngine
	side    portSide
	out     chan wire.Batch
	done    chan struct{}
	senders sync.WaitGroup
	closed  bool // guarded by engine.mu
}

func (p *pipePort) Output() <-chan wire.Batch { return p.out }

func (p *pipePort) Send(b wire.Batch) error {
	e := p.engine
	e.mu.Lock()
	if p.closed {
		e.mu.Unlock()
		return ErrPortClosed
	}
	var peer *pipePort
	switch p.side {
	case sideSharer:
		if e.sharer == p {
			peer = e.controller
		}
	case sideController:
		if e.controller == p {
			peer = e.sharer
		}
	}
	if peer == nil {
		e.mu.Unlock()
		return ErrNoPeer
	}
	// Registering under the lock pins the peer's queue open until this
	// send finishes.
	peer.senders.Add(1)
	e.mu.Unlock()
	defer peer.senders.Done()

	select {
	case peer.out <- b:
		return nil
	case <-peer.done:
		return ErrNoPeer
	}
}

func (p *pipePort) Close() {
	e := p.engine
	e.mu.Lock()
	if p.closed {
		e.mu.Unlock()
		return
	}
	p.closed = true
	var cascade *pipePort
	switch p.side {
	case sideSharer:
		if e.sharer == p {
			e.sharer = nil
			cascade = e.controller
		}
	case sideController:
		if e.controller == p {
			e.controller = nil
		}
	}
	e.mu.Unlock()

	// Wake blocked senders, wait them out, then the queue can close.
	close(p.done)
	p.senders.Wait()
	close(p.out)

	if cascade != nil {
		cascade.Close()
	}
}
