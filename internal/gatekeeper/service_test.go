package gatekeeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"palisade/internal/platform/config"
	"palisade/internal/ratelimit"
	"palisade/internal/registry"
	id "palisade/pkg/domain"
)

type staticRegistry struct {
	snapshot *registry.Snapshot
}

func (r *staticRegistry) Snapshot() *registry.Snapshot {
	return r.snapshot
}

// brokenWindowStore always fails, exercising the fail-open path.
type brokenWindowStore struct{}

func (brokenWindowStore) Reserve(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("store unavailable")
}

func (brokenWindowStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	return 0, errors.New("store unavailable")
}

func (brokenWindowStore) Reset(ctx context.Context, key string) error {
	return errors.New("store unavailable")
}

func testGatekeeperConfig() config.Gatekeeper {
	return config.Gatekeeper{
		ProtocolVersion:      4,
		Mode:                 config.ModePermissive,
		StakeThreshold:       10,
		RateWindow:           time.Minute,
		MaxRequestsPerWindow: 8,
		ActiveNetwork:        "bitcoin",
		ActiveModelType:      "funds_flow",
		ForbiddenKeywords:    []string{"create", "delete", "drop", "set", "merge", "remove"},
	}
}

func testSnapshot() *registry.Snapshot {
	return registry.NewSnapshot([]registry.Participant{
		{Identity: "node-a", Stake: 50, Endpoint: "http://a:9100", Reachable: true},
		{Identity: "node-b", Stake: 5, Endpoint: "http://b:9100", Reachable: true},
		{Identity: "node-c", Stake: 50, Endpoint: "", Reachable: false},
		{Identity: "node-banned", Stake: 50, Endpoint: "http://x:9100", Reachable: true},
	})
}

type GatekeeperSuite struct {
	suite.Suite
	ctx context.Context
}

func TestGatekeeperSuite(t *testing.T) {
	suite.Run(t, new(GatekeeperSuite))
}

func (s *GatekeeperSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *GatekeeperSuite) newService(gc config.Gatekeeper) *Service {
	svc, err := New(&staticRegistry{snapshot: testSnapshot()}, ratelimit.NewInMemoryWindowStore(), CompileConfig(gc))
	s.Require().NoError(err)
	return svc
}

func (s *GatekeeperSuite) discover(svc *Service, identity id.Identity) Decision {
	return svc.DecideDiscovery(s.ctx, RequestContext{Identity: identity, ProtocolVersion: 4})
}

func (s *GatekeeperSuite) TestDiscoveryCascade() {
	s.Run("registered identity allowed", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := s.discover(svc, "node-a")
		s.True(decision.Allow)
		s.Equal(ReasonRecognized, decision.Reason)
	})

	s.Run("unknown identity denied", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := s.discover(svc, "node-unknown")
		s.False(decision.Allow)
		s.Equal(ReasonUnrecognized, decision.Reason)
	})

	s.Run("protocol mismatch denied", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := svc.DecideDiscovery(s.ctx, RequestContext{Identity: "node-a", ProtocolVersion: 3})
		s.False(decision.Allow)
		s.Equal(ReasonProtocolMismatch, decision.Reason)
	})

	s.Run("blacklisted identity denied with identity in reason", func() {
		gc := testGatekeeperConfig()
		gc.Blacklist = []string{"node-banned"}
		svc := s.newService(gc)
		decision := s.discover(svc, "node-banned")
		s.False(decision.Allow)
		s.Equal("Blacklisted identity: node-banned", decision.Reason)
	})

	s.Run("blacklist wins over whitelist", func() {
		gc := testGatekeeperConfig()
		gc.Mode = config.ModeRestricted
		gc.Blacklist = []string{"node-banned"}
		gc.Whitelist = []string{"node-banned"}
		svc := s.newService(gc)
		decision := s.discover(svc, "node-banned")
		s.False(decision.Allow)
		s.Equal("Blacklisted identity: node-banned", decision.Reason)
	})

	s.Run("whitelist ignored in permissive mode", func() {
		gc := testGatekeeperConfig()
		gc.Whitelist = []string{"node-b"}
		svc := s.newService(gc)
		decision := s.discover(svc, "node-a")
		s.True(decision.Allow)
	})

	s.Run("whitelist enforced in restricted mode", func() {
		gc := testGatekeeperConfig()
		gc.Mode = config.ModeRestricted
		gc.Whitelist = []string{"node-b"}
		svc := s.newService(gc)
		decision := s.discover(svc, "node-a")
		s.False(decision.Allow)
		s.Equal("Not allow-listed: node-a", decision.Reason)
	})

	s.Run("unreachable identity denied", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := s.discover(svc, "node-c")
		s.False(decision.Allow)
		s.Equal(ReasonNotRegistered, decision.Reason)
	})

	s.Run("stake floor ignored in permissive mode", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := s.discover(svc, "node-b")
		s.True(decision.Allow)
	})

	s.Run("low stake denied in restricted mode", func() {
		gc := testGatekeeperConfig()
		gc.Mode = config.ModeRestricted
		svc := s.newService(gc)
		decision := s.discover(svc, "node-b")
		s.False(decision.Allow)
		s.Equal("Denied due to low stake: 5<10", decision.Reason)
	})

	s.Run("stake exactly at threshold allowed", func() {
		gc := testGatekeeperConfig()
		gc.Mode = config.ModeRestricted
		gc.StakeThreshold = 50
		svc := s.newService(gc)
		decision := s.discover(svc, "node-a")
		s.True(decision.Allow)
	})
}

func (s *GatekeeperSuite) TestDiscoveryRateLimit() {
	gc := testGatekeeperConfig()
	gc.MaxRequestsPerWindow = 3
	svc := s.newService(gc)

	for range 3 {
		decision := s.discover(svc, "node-a")
		s.Require().True(decision.Allow)
	}

	decision := s.discover(svc, "node-a")
	s.False(decision.Allow)
	s.Equal("Request rate exceeded for node-a", decision.Reason)

	s.Run("other identities unaffected", func() {
		decision := s.discover(svc, "node-b")
		s.True(decision.Allow)
	})

	s.Run("denied requests are not recorded", func() {
		store := ratelimit.NewInMemoryWindowStore()
		svc, err := New(&staticRegistry{snapshot: testSnapshot()}, store, CompileConfig(gc))
		s.Require().NoError(err)

		for range 10 {
			s.discover(svc, "node-a")
		}
		count, err := store.Count(s.ctx, "node-a", gc.RateWindow)
		s.Require().NoError(err)
		s.Equal(3, count)
	})

	s.Run("denied request before the limiter leaves no timestamp", func() {
		store := ratelimit.NewInMemoryWindowStore()
		gc := testGatekeeperConfig()
		gc.Blacklist = []string{"node-banned"}
		svc, err := New(&staticRegistry{snapshot: testSnapshot()}, store, CompileConfig(gc))
		s.Require().NoError(err)

		decision := s.discover(svc, "node-banned")
		s.Require().False(decision.Allow)

		count, err := store.Count(s.ctx, "node-banned", gc.RateWindow)
		s.Require().NoError(err)
		s.Equal(0, count)
	})
}

func (s *GatekeeperSuite) TestRateLimiterFailsOpen() {
	svc, err := New(&staticRegistry{snapshot: testSnapshot()}, brokenWindowStore{}, CompileConfig(testGatekeeperConfig()))
	s.Require().NoError(err)

	decision := s.discover(svc, "node-a")
	s.True(decision.Allow)
	s.Equal(ReasonRecognized, decision.Reason)
}

func (s *GatekeeperSuite) TestQueryCascade() {
	query := func(svc *Service, network, model, prompt string) Decision {
		return svc.DecideQuery(s.ctx, RequestContext{
			Identity:          "node-a",
			DeclaredNetwork:   network,
			DeclaredModelType: model,
			RawPayload:        prompt,
			ProtocolVersion:   4,
		})
	}

	s.Run("matching query allowed", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := query(svc, "bitcoin", "funds_flow", "MATCH (n) RETURN n")
		s.True(decision.Allow)
		s.Equal(ReasonRecognized, decision.Reason)
	})

	s.Run("wrong network denied", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := query(svc, "ethereum", "funds_flow", "MATCH (n) RETURN n")
		s.False(decision.Allow)
		s.Equal(ReasonNetworkMismatch, decision.Reason)
	})

	s.Run("wrong model type denied", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := query(svc, "bitcoin", "other_model", "MATCH (n) RETURN n")
		s.False(decision.Allow)
		s.Equal(ReasonModelMismatch, decision.Reason)
	})

	s.Run("forbidden keyword denied regardless of case", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := query(svc, "bitcoin", "funds_flow", "DROP CONSTRAINT on_addresses")
		s.False(decision.Allow)
		s.Equal(ReasonIllegalKeyword, decision.Reason)
	})

	s.Run("keyword inside a larger token allowed", func() {
		svc := s.newService(testGatekeeperConfig())
		decision := query(svc, "bitcoin", "funds_flow", "MATCH (droplet) RETURN droplet")
		s.True(decision.Allow)
	})

	s.Run("queries are never rate limited", func() {
		gc := testGatekeeperConfig()
		gc.MaxRequestsPerWindow = 1
		svc := s.newService(gc)
		for range 5 {
			decision := query(svc, "bitcoin", "funds_flow", "MATCH (n) RETURN n")
			s.Require().True(decision.Allow)
		}
	})
}

func (s *GatekeeperSuite) TestUpdateConfig() {
	svc := s.newService(testGatekeeperConfig())

	decision := s.discover(svc, "node-banned")
	s.Require().True(decision.Allow)

	gc := testGatekeeperConfig()
	gc.Blacklist = []string{"node-banned"}
	svc.UpdateConfig(CompileConfig(gc))

	decision = s.discover(svc, "node-banned")
	s.False(decision.Allow)
	s.Equal("Blacklisted identity: node-banned", decision.Reason)
}

func TestContainsForbiddenKeyword(t *testing.T) {
	forbidden := map[string]struct{}{"drop": {}, "delete": {}}

	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"plain match", "drop everything", true},
		{"uppercase match", "DROP CONSTRAINT", true},
		{"mixed case", "DrOp table", true},
		{"substring does not match", "the droplet falls", false},
		{"punctuation separated", "run;drop;run", true},
		{"empty payload", "", false},
		{"clean query", "MATCH (n) RETURN n LIMIT 10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, containsForbiddenKeyword(tt.payload, forbidden))
		})
	}
}
