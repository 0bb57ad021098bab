package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidPolicy   = errors.New("invalid policy")
	ErrDuplicatePolicy = errors.New("duplicate policy")
	ErrUnknownPolicy   = errors.New("unknown policy")
)

// Policy é uma configuração nomeada e imutável: no máximo Quota unidades por Window.
type Policy struct {
	Name   string
	Window time.Duration
	Quota  int
}

// Validate rejeita policies que só poderiam ser erro de programação.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %q window must be > 0, got %s", ErrInvalidPolicy, p.Name, p.Window)
	}
	if p.Quota < 1 {
		return fmt.Errorf("%w: %q quota must be >= 1, got %d", ErrInvalidPolicy, p.Name, p.Quota)
	}
	return nil
}

// PolicyTable é a tabela de policies definida no start do processo.
// Depois de construída não muda, então pode ser lida sem lock.
type PolicyTable struct {
	byName map[string]Policy
}

// NewPolicyTable valida todas as policies e monta a tabela.
func NewPolicyTable(policies ...Policy) (PolicyTable, error) {
	byName := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return PolicyTable{}, err
		}
		if _, ok := byName[p.Name]; ok {
			return PolicyTable{}, fmt.Errorf("%w: %q", ErrDuplicatePolicy, p.Name)
		}
		byName[p.Name] = p
	}
	return PolicyTable{byName: byName}, nil
}

func (t PolicyTable) Lookup(name string) (Policy, error) {
	p, ok := t.byName[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

func (t PolicyTable) Names() []string {
	out := make([]string, 0, len(t.byName))
	for name := range t.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (t PolicyTable) Len() int { return len(t.byName) }
