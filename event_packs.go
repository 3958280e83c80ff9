package hooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-hooks/core"
)

// EventPack is a named group of action to event bindings contributed by a
// downstream module, e.g. a billing package exposing invoice.* events.
type EventPack struct {
	Name     string
	Bindings []core.EventBinding
}

// EventPacks collects packs before the service is built. Packs are applied
// after the default bindings in name order.
type EventPacks struct {
	mu    sync.RWMutex
	packs map[string]EventPack
}

func NewEventPacks() *EventPacks {
	return &EventPacks{packs: map[string]EventPack{}}
}

func (p *EventPacks) Register(pack EventPack) error {
	if p == nil {
		return fmt.Errorf("hooks: event packs are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("hooks: event pack name is required")
	}
	if len(pack.Bindings) == 0 {
		return fmt.Errorf("hooks: event pack %q has no bindings", name)
	}
	bindings := make([]core.EventBinding, 0, len(pack.Bindings))
	for _, binding := range pack.Bindings {
		binding.Action = strings.TrimSpace(binding.Action)
		binding.Event = core.NormalizeEventName(binding.Event)
		if binding.Action == "" || binding.Event == "" {
			return fmt.Errorf("hooks: event pack %q has a binding without action or event", name)
		}
		bindings = append(bindings, binding)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.packs[name]; exists {
		return fmt.Errorf("hooks: event pack %q already registered", name)
	}
	taken := bindingKeys(core.DefaultEventBindings())
	for _, existing := range p.packs {
		for key := range bindingKeys(existing.Bindings) {
			taken[key] = existing.Name
		}
	}
	for _, binding := range bindings {
		key := binding.Action + "->" + binding.Event
		if owner, exists := taken[key]; exists {
			return fmt.Errorf("hooks: event pack %q binding %s conflicts with %s", name, key, owner)
		}
	}
	p.packs[name] = EventPack{Name: name, Bindings: bindings}
	return nil
}

func (p *EventPacks) Packs() []EventPack {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := p.sortedNames()
	out := make([]EventPack, 0, len(names))
	for _, name := range names {
		pack := p.packs[name]
		out = append(out, EventPack{
			Name:     pack.Name,
			Bindings: append([]core.EventBinding(nil), pack.Bindings...),
		})
	}
	return out
}

// Bindings returns the default bindings followed by every registered pack.
func (p *EventPacks) Bindings() []core.EventBinding {
	out := core.DefaultEventBindings()
	for _, pack := range p.Packs() {
		out = append(out, pack.Bindings...)
	}
	return out
}

// Events is the public vocabulary tenants may subscribe to once the packs
// are applied.
func (p *EventPacks) Events() []string {
	return core.EventsFromBindings(p.Bindings())
}

// Option installs the combined bindings on a service.
func (p *EventPacks) Option() Option {
	return core.WithEventBindings(p.Bindings()...)
}

func (p *EventPacks) sortedNames() []string {
	names := make([]string, 0, len(p.packs))
	for name := range p.packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bindingKeys(bindings []core.EventBinding) map[string]string {
	out := make(map[string]string, len(bindings))
	for _, binding := range bindings {
		out[strings.TrimSpace(binding.Action)+"->"+core.NormalizeEventName(binding.Event)] = "default bindings"
	}
	return out
}
