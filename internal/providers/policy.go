package providers

import "sync/atomic"

// Policy restricts which providers run and which credential types each
// may surface. The zero value permits everything.
type Policy struct {
	// Allowed, when non-empty, switches the provider filter to
	// allow-list mode: only the named providers run.
	Allowed []string
	// Disabled lists providers switched off installation-wide. Disabled
	// applies in both filter modes and wins over Allowed.
	Disabled map[string]bool
	// Types maps a provider name to the credential type tags it may
	// surface. A provider absent from the map surfaces all types.
	Types map[string][]string
	// TypeDenials bars (provider, type) pairs outright. A denial wins
	// over a Types entry naming the same pair.
	TypeDenials map[string][]string
}

// Admits reports whether provider may run at all.
func (p *Policy) Admits(provider string) bool {
	if p == nil {
		return true
	}
	if p.Disabled[provider] {
		return false
	}
	if len(p.Allowed) == 0 {
		return true
	}
	for _, name := range p.Allowed {
		if name == provider {
			return true
		}
	}
	return false
}

// AllowsType reports whether provider may surface credentials of tag.
// The provider must be admitted, no denial may name the pair, and when
// an allow list names the provider it must include the tag.
func (p *Policy) AllowsType(provider, tag string) bool {
	if p == nil {
		return true
	}
	if !p.Admits(provider) {
		return false
	}
	for _, t := range p.TypeDenials[provider] {
		if t == tag {
			return false
		}
	}
	allowed, restricted := p.Types[provider]
	if !restricted {
		return true
	}
	for _, t := range allowed {
		if t == tag {
			return true
		}
	}
	return false
}

// policyHolder publishes policy snapshots. Reads during resolution take
// no lock; SetPolicy swaps the whole snapshot.
type policyHolder struct {
	ptr atomic.Pointer[Policy]
}

func (h *policyHolder) set(p *Policy) {
	if p == nil {
		p = &Policy{}
	}
	h.ptr.Store(p)
}

func (h *policyHolder) get() *Policy {
	return h.ptr.Load()
}

// SetPolicy replaces the active policy snapshot.
func (r *Registry) SetPolicy(p *Policy) {
	r.policy.set(p)
}

// Policy returns the active policy snapshot.
func (r *Registry) Policy() *Policy {
	return r.policy.get()
}
