package component

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/mtscore/command"
	"github.com/c360/mtscore/errors"
	"github.com/c360/mtscore/mailbox"
)

// EndUserInterface is the view of a provided interface dedicated to one
// client. Queued commands obtained from it post to the view's own mailbox.
type EndUserInterface struct {
	provided *ProvidedInterface
	user     string
	mb       *mailbox.Mailbox
	retired  atomic.Bool
	// held while a required interface is bound through this view
	claimed atomic.Bool

	mu      sync.Mutex
	wrapped map[string]command.Command
}

// UserName returns the client this view was created for.
func (eu *EndUserInterface) UserName() string { return eu.user }

// Provided returns the interface this view belongs to.
func (eu *EndUserInterface) Provided() *ProvidedInterface { return eu.provided }

// InUse reports whether a required interface is currently bound through the view.
func (eu *EndUserInterface) InUse() bool { return eu.claimed.Load() }

func (eu *EndUserInterface) claim() bool { return eu.claimed.CompareAndSwap(false, true) }

func (eu *EndUserInterface) release() { eu.claimed.Store(false) }

// Mailbox returns the view's mailbox, nil when commands are not queued.
func (eu *EndUserInterface) Mailbox() *mailbox.Mailbox { return eu.mb }

// Command returns the command a client should bind for name. Queued commands
// are wrapped once per view and the wrapper is reused.
func (eu *EndUserInterface) Command(name string) (command.Command, error) {
	if eu.retired.Load() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: end-user interface for %s was released", errors.ErrNotFound, eu.user),
			"EndUserInterface", "Command", "view lookup")
	}

	pi := eu.provided
	pi.mu.RLock()
	entry, ok := pi.commands[name]
	pi.mu.RUnlock()
	if !ok {
		return nil, pi.notFound("Command", "command", name)
	}
	if !entry.queued || eu.mb == nil {
		return entry.cmd, nil
	}

	eu.mu.Lock()
	defer eu.mu.Unlock()
	if cmd, ok := eu.wrapped[name]; ok {
		return cmd, nil
	}
	cmd := entry.wrap(eu.mb)
	eu.wrapped[name] = cmd
	return cmd, nil
}

// Event returns the event generator registered under name.
func (eu *EndUserInterface) Event(name string) (command.Event, error) {
	return eu.provided.Event(name)
}
