package gatekeeper

import (
	"strings"
	"time"

	"palisade/internal/platform/config"
	id "palisade/pkg/domain"
)

// Decision reasons. The exact strings are part of the serving contract:
// callers and operators grep for them, so they only change deliberately.
const (
	ReasonRecognized       = "Identity recognized"
	ReasonUnrecognized     = "Unrecognized identity"
	ReasonProtocolMismatch = "Protocol version differs"
	ReasonNotRegistered    = "Blacklisted a non-registered identity's request"
	ReasonNetworkMismatch  = "Network not supported."
	ReasonModelMismatch    = "Model type not supported."
	ReasonIllegalKeyword   = "Illegal keyword in query."
)

// Decision is the outcome of an admission check. Reason is always populated,
// for allows as well as denies.
type Decision struct {
	Allow  bool
	Reason string
}

func allow(reason string) Decision {
	return Decision{Allow: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// RequestContext carries the per-request inputs to an admission decision.
// Created at the serving boundary, consumed by the gatekeeper, then discarded.
type RequestContext struct {
	Identity          id.Identity
	DeclaredNetwork   string
	DeclaredModelType string
	RawPayload        string
	ProtocolVersion   int
}

// Config is the compiled, immutable admission configuration. It is built once
// from the validated platform config and swapped wholesale on hot reload, so
// a single decision always sees one consistent version.
type Config struct {
	ProtocolVersion      int
	Restricted           bool
	Whitelist            map[id.Identity]struct{}
	Blacklist            map[id.Identity]struct{}
	StakeThreshold       float64
	RateWindow           time.Duration
	MaxRequestsPerWindow int
	ActiveNetwork        string
	ActiveModelType      string
	ForbiddenKeywords    map[string]struct{}
}

// CompileConfig converts the validated platform configuration into the
// lookup-friendly form the cascade consumes.
func CompileConfig(gc config.Gatekeeper) *Config {
	cfg := &Config{
		ProtocolVersion:      gc.ProtocolVersion,
		Restricted:           gc.Mode == config.ModeRestricted,
		Whitelist:            make(map[id.Identity]struct{}, len(gc.Whitelist)),
		Blacklist:            make(map[id.Identity]struct{}, len(gc.Blacklist)),
		StakeThreshold:       gc.StakeThreshold,
		RateWindow:           gc.RateWindow,
		MaxRequestsPerWindow: gc.MaxRequestsPerWindow,
		ActiveNetwork:        gc.ActiveNetwork,
		ActiveModelType:      gc.ActiveModelType,
		ForbiddenKeywords:    make(map[string]struct{}, len(gc.ForbiddenKeywords)),
	}
	for _, w := range gc.Whitelist {
		cfg.Whitelist[id.Identity(w)] = struct{}{}
	}
	for _, b := range gc.Blacklist {
		cfg.Blacklist[id.Identity(b)] = struct{}{}
	}
	for _, kw := range gc.ForbiddenKeywords {
		cfg.ForbiddenKeywords[strings.ToLower(kw)] = struct{}{}
	}
	return cfg
}
