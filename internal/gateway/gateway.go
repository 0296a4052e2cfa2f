// Package gateway is the boundary to bill-payment providers. A provider call
// has exactly three outcomes and ambiguity is always reported as pending.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrGatewayTimeout is returned when the provider did not answer in time.
	ErrGatewayTimeout  = errors.New("gateway timeout")
	// ErrGatewayUnknown covers transport failures whose effect on the
	// provider side cannot be known.
	ErrGatewayUnknown  = errors.New("gateway outcome unknown")
	// ErrNotSent marks a transport failure that happened before any part of
	// the request was written to the provider.
	ErrNotSent         = errors.New("request not sent")
	ErrUnknownProvider = errors.New("unknown provider")
)

type Class string

const (
	Success Class = "success"
	Pending Class = "pending"
	Failed  Class = "failed"
)

const (
	CodeSuccess = "000"
	CodePending = "099"
)

// Classify maps a provider response code to an outcome class.
func Classify(code string) Class {
	switch code {
	case CodeSuccess:
		return Success
	case CodePending:
		return Pending
	default:
		return Failed
	}
}

type Request struct {
	Reference     string
	ServiceCode   string
	Recipient     string
	VariationCode string
	Amount        int64
	Phone         string
}

type Outcome struct {
	Class       Class
	Code        string
	Description string
	Payload     map[string]any
}

// Definitive reports whether the outcome settles the transaction.
func (o Outcome) Definitive() bool {
	return o.Class == Success || o.Class == Failed
}

type Provider interface {
	Name() string
	Purchase(ctx context.Context, req Request) (Outcome, error)
	Requery(ctx context.Context, reference string) (Outcome, error)
}

// TransportOutcome converts a transport error into an outcome. Timeouts and
// unknown failures are pending. A provider that declines on timeout turns a
// timeout into a failure, but only when the request was never sent.
func TransportOutcome(err error, declinesOnTimeout bool) Outcome {
	out := Outcome{Class: Pending, Description: err.Error()}

	if declinesOnTimeout && errors.Is(err, ErrGatewayTimeout) && errors.Is(err, ErrNotSent) {
		out.Class = Failed
	}

	return out
}

// Registry resolves providers by name. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}

	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
