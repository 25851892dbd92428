package gatekeeper

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"palisade/internal/registry"
)

// baseDecision applies the checks shared by every request kind.
// Rule priority (fail-fast, cheapest first):
//  1. Identity membership - the registry is the source of truth
//  2. Protocol compatibility - exact version match
//  3. Explicit deny list - evaluated before the allow list so an identity
//     cannot escape a deny by also being allow-listed
//  4. Allow list - only enforced in restricted mode, and only when non-empty
//
// This is pure domain logic - no I/O, no side effects.
func baseDecision(req RequestContext, cfg *Config, reg *registry.Snapshot) Decision {
	if !reg.Contains(req.Identity) {
		return deny(ReasonUnrecognized)
	}

	if req.ProtocolVersion != cfg.ProtocolVersion {
		return deny(ReasonProtocolMismatch)
	}

	if _, listed := cfg.Blacklist[req.Identity]; listed {
		return deny(fmt.Sprintf("Blacklisted identity: %s", req.Identity))
	}

	if cfg.Restricted && len(cfg.Whitelist) > 0 {
		if _, listed := cfg.Whitelist[req.Identity]; !listed {
			return deny(fmt.Sprintf("Not allow-listed: %s", req.Identity))
		}
	}

	return allow(ReasonRecognized)
}

// discoveryDecision wraps the base cascade for discovery-style requests.
// The rate-limit step is applied by the service afterwards because it has a
// side effect (recording the request timestamp).
func discoveryDecision(req RequestContext, cfg *Config, reg *registry.Snapshot) Decision {
	if base := baseDecision(req, cfg, reg); !base.Allow {
		return base
	}

	if !reg.Reachable(req.Identity) {
		return deny(ReasonNotRegistered)
	}

	if cfg.Restricted {
		if stake := reg.StakeOf(req.Identity); stake < cfg.StakeThreshold {
			return deny(fmt.Sprintf("Denied due to low stake: %s<%s",
				formatStake(stake), formatStake(cfg.StakeThreshold)))
		}
	}

	return allow(ReasonRecognized)
}

// queryDecision wraps the base cascade for data-query requests.
func queryDecision(req RequestContext, cfg *Config, reg *registry.Snapshot) Decision {
	if base := baseDecision(req, cfg, reg); !base.Allow {
		return base
	}

	if req.DeclaredNetwork != cfg.ActiveNetwork {
		return deny(ReasonNetworkMismatch)
	}

	if req.DeclaredModelType != cfg.ActiveModelType {
		return deny(ReasonModelMismatch)
	}

	if containsForbiddenKeyword(req.RawPayload, cfg.ForbiddenKeywords) {
		return deny(ReasonIllegalKeyword)
	}

	return allow(ReasonRecognized)
}

// containsForbiddenKeyword reports whether the payload contains any forbidden
// keyword as a whole token, case-insensitively. Token matching avoids false
// positives on substrings ("DROPLET" does not match "DROP").
func containsForbiddenKeyword(payload string, forbidden map[string]struct{}) bool {
	if len(forbidden) == 0 {
		return false
	}
	tokens := strings.FieldsFunc(payload, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, tok := range tokens {
		if _, ok := forbidden[strings.ToLower(tok)]; ok {
			return true
		}
	}
	return false
}

// formatStake renders stake amounts without a forced decimal point so the
// reason string reads "5<10" rather than "5.000000<10.000000".
func formatStake(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
