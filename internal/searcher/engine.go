package searcher

import (
	"fmt"
	"strings"

	"github.com/dshills/skillindex/pkg/types"
)

// Engine selects how a query is scored
type Engine string

const (
	EngineAuto   Engine = "auto"
	EngineSparse Engine = Engine(types.EngineSparse)
	EngineDense  Engine = Engine(types.EngineDense)
	EngineHybrid Engine = Engine(types.EngineHybrid)
)

// engineAliases maps accepted spellings to engines
var engineAliases = map[string]Engine{
	"":       EngineAuto,
	"auto":   EngineAuto,
	"sparse": EngineSparse,
	"tfidf":  EngineSparse,
	"dense":  EngineDense,
	"sbert":  EngineDense,
	"hybrid": EngineHybrid,
}

// ParseEngine accepts an engine name or alias, case-insensitive
func ParseEngine(name string) (Engine, error) {
	e, ok := engineAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: unknown engine %q", types.ErrInvalidRequest, name)
	}
	return e, nil
}

// capability is one thing an engine needs to run
type capability uint8

const (
	capSparseIndex capability = 1 << iota
	capDenseIndex
	capProvider
)

// requires lists what each engine needs. Auto is resolved before this is used.
func (e Engine) requires() capability {
	switch e {
	case EngineSparse:
		return capSparseIndex
	case EngineDense:
		return capDenseIndex | capProvider
	case EngineHybrid:
		return capSparseIndex | capDenseIndex | capProvider
	}
	return 0
}

// capabilities is what the current snapshot and provider offer
type capabilities capability

func (c capabilities) has(need capability) bool {
	return capability(c)&need == need
}

// resolve picks the concrete engine for a query. Auto prefers dense when the
// dense index and a provider are both present.
func resolve(requested Engine, caps capabilities) (Engine, error) {
	if requested == EngineAuto {
		switch {
		case caps.has(EngineDense.requires()):
			return EngineDense, nil
		case caps.has(EngineSparse.requires()):
			return EngineSparse, nil
		}
		return "", fmt.Errorf("%w: no engine can serve queries", types.ErrEngineUnavailable)
	}

	need := requested.requires()
	if need&capDenseIndex != 0 && !caps.has(capDenseIndex) {
		return "", fmt.Errorf("%w: %s needs dense vectors, index has none", types.ErrEngineUnavailable, requested)
	}
	if need&capSparseIndex != 0 && !caps.has(capSparseIndex) {
		return "", fmt.Errorf("%w: %s needs the sparse index", types.ErrEngineUnavailable, requested)
	}
	if need&capProvider != 0 && !caps.has(capProvider) {
		return "", fmt.Errorf("%w: %s engine needs a matching embedding provider", types.ErrProviderUnavailable, requested)
	}
	return requested, nil
}
