// Package ipi carries load-balancing requests between cores. A sender pushes a
// request onto the target core's pending queue and raises the protocol's
// interrupt vector on that core; the target pops and processes it from its
// own interrupt handler.
package ipi

import (
	"errors"
	"fmt"

	"smp-sched/internal/policy"
	"smp-sched/internal/task"
	"smp-sched/internal/topology"

	"github.com/google/uuid"
)

// Vector is the interrupt vector reserved for this protocol.
const Vector uint8 = 0xF3

var ErrUnknownRequest = errors.New("unknown ipi request")

type Kind uint8

const (
	KindAccept Kind = iota + 1
	KindRenounce
)

func (k Kind) String() string {
	switch k {
	case KindAccept:
		return "accept_tasks"
	case KindRenounce:
		return "renounce_tasks"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Request is one message on a core's pending queue. The concrete types are
// *AcceptTasks and *RenounceTasks.
type Request interface {
	Kind() Kind
	ID() uuid.UUID
}

// AcceptTasks hands an isolated ring of tasks to the target core.
type AcceptTasks struct {
	id     uuid.UUID
	Policy policy.ID
	Tasks  task.List
}

func (r *AcceptTasks) Kind() Kind    { return KindAccept }
func (r *AcceptTasks) ID() uuid.UUID { return r.id }

// RenounceTasks asks Src to give tasks to Dst. Donor and Taker are the sibling
// groups, under the domain being balanced, that contain Src and Dst.
type RenounceTasks struct {
	id     uuid.UUID
	Policy policy.ID
	Donor  *topology.Domain
	Taker  *topology.Domain
	Src    int
	Dst    int
}

func (r *RenounceTasks) Kind() Kind    { return KindRenounce }
func (r *RenounceTasks) ID() uuid.UUID { return r.id }
