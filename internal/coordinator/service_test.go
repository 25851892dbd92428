package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"palisade/internal/query"
	"palisade/internal/registry"
	"palisade/internal/reputation"
	"palisade/internal/selector"
	id "palisade/pkg/domain"
	dErrors "palisade/pkg/domain-errors"
	"palisade/pkg/platform/sentinel"
)

type staticRegistry struct {
	snapshot *registry.Snapshot
}

func (r *staticRegistry) Snapshot() *registry.Snapshot {
	return r.snapshot
}

// stubDispatcher scripts per-identity outcomes and records who was called.
type stubDispatcher struct {
	mu        sync.Mutex
	responses map[id.Identity]query.Response
	errs      map[id.Identity]error
	called    []id.Identity
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{
		responses: make(map[id.Identity]query.Response),
		errs:      make(map[id.Identity]error),
	}
}

func (d *stubDispatcher) Dispatch(ctx context.Context, endpoint string, identity id.Identity, req query.Request) (query.Response, error) {
	d.mu.Lock()
	d.called = append(d.called, identity)
	d.mu.Unlock()

	if err := d.errs[identity]; err != nil {
		return query.Response{}, err
	}
	if resp, ok := d.responses[identity]; ok {
		return resp, nil
	}
	return query.Response{Identity: identity, Result: "result from " + identity.String()}, nil
}

func (d *stubDispatcher) calledIdentities() []id.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]id.Identity, len(d.called))
	copy(out, d.called)
	return out
}

type CoordinatorSuite struct {
	suite.Suite
	ctx        context.Context
	ledger     *reputation.Ledger
	dispatcher *stubDispatcher
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.reset()
}

// reset gives each subtest a fresh ledger and dispatcher script.
func (s *CoordinatorSuite) reset() {
	s.dispatcher = newStubDispatcher()

	ledger, err := reputation.New(0.5, 0.5)
	s.Require().NoError(err)
	s.ledger = ledger
}

func (s *CoordinatorSuite) newService(fraction float64, participants ...registry.Participant) *Service {
	if len(participants) == 0 {
		participants = []registry.Participant{
			{Identity: "node-a", Endpoint: "http://a:9100", Reachable: true},
			{Identity: "node-b", Endpoint: "http://b:9100", Reachable: true},
			{Identity: "node-c", Endpoint: "http://c:9100", Reachable: true},
		}
	}

	sel, err := selector.New(fraction, selector.WithSeed(1))
	s.Require().NoError(err)

	svc, err := New(
		&staticRegistry{snapshot: registry.NewSnapshot(participants)},
		s.ledger,
		sel,
		s.dispatcher,
		query.DefaultReward,
		time.Second,
	)
	s.Require().NoError(err)
	return svc
}

func (s *CoordinatorSuite) TestSubmitQuery() {
	req := query.Request{Network: "bitcoin", ModelType: "funds_flow", Prompt: "total received"}

	s.Run("routes to all candidates and returns one success", func() {
		s.reset()
		svc := s.newService(1)
		resp, err := svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)
		s.Require().NotNil(resp)
		s.True(resp.OK())
		s.ElementsMatch([]id.Identity{"node-a", "node-b", "node-c"}, s.dispatcher.calledIdentities())
	})

	s.Run("rewards successful responders", func() {
		s.reset()
		svc := s.newService(1)
		_, err := svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)

		// Flat reward 0.5, alpha 0.5: first cycle lands at 0.25.
		s.InDelta(0.25, s.ledger.Score("node-a"), 1e-9)
		s.InDelta(0.25, s.ledger.Score("node-b"), 1e-9)
		s.InDelta(0.25, s.ledger.Score("node-c"), 1e-9)
	})

	s.Run("timeouts get no reward but are not excluded", func() {
		s.reset()
		s.dispatcher.responses["node-b"] = query.Response{Identity: "node-b", Failure: query.FailureTimeout}
		svc := s.newService(1)

		resp, err := svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)
		s.NotEqual(id.Identity("node-b"), resp.Identity)
		s.Zero(s.ledger.Score("node-b"))
		s.False(s.ledger.IsExcluded("node-b"))
	})

	s.Run("denied responders are excluded from later routing", func() {
		s.reset()
		// Five known nodes, reset fraction 0.5: bound ceil(2.5)=3, one denial
		// stays marked.
		s.dispatcher.responses["node-b"] = query.Response{Identity: "node-b", Failure: query.FailureDenied}
		svc := s.newService(1,
			registry.Participant{Identity: "node-a", Endpoint: "http://a:9100", Reachable: true},
			registry.Participant{Identity: "node-b", Endpoint: "http://b:9100", Reachable: true},
			registry.Participant{Identity: "node-c", Endpoint: "http://c:9100", Reachable: true},
			registry.Participant{Identity: "node-d", Endpoint: "http://d:9100", Reachable: true},
			registry.Participant{Identity: "node-e", Endpoint: "http://e:9100", Reachable: true},
		)

		_, err := svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)
		s.True(s.ledger.IsExcluded("node-b"))
		s.Zero(s.ledger.Score("node-b"))

		s.dispatcher.called = nil
		_, err = svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)
		s.NotContains(s.dispatcher.calledIdentities(), id.Identity("node-b"))
	})

	s.Run("dispatch errors do not abort the rest", func() {
		s.reset()
		s.dispatcher.errs["node-a"] = errors.New("connection refused")
		svc := s.newService(1)

		resp, err := svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)
		s.NotEqual(id.Identity("node-a"), resp.Identity)
	})

	s.Run("all failing responders surface as no responders", func() {
		s.reset()
		s.dispatcher.responses["node-a"] = query.Response{Identity: "node-a", Failure: query.FailureTimeout}
		s.dispatcher.responses["node-b"] = query.Response{Identity: "node-b", Failure: query.FailureTransport}
		s.dispatcher.responses["node-c"] = query.Response{Identity: "node-c", Failure: query.FailureTimeout}
		svc := s.newService(1)

		_, err := svc.SubmitQuery(s.ctx, req)
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrNoResponders)
		s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
	})

	s.Run("empty registry surfaces as no responders", func() {
		s.reset()
		sel, err := selector.New(1)
		s.Require().NoError(err)
		svc, err := New(
			&staticRegistry{snapshot: registry.NewSnapshot(nil)},
			s.ledger, sel, s.dispatcher, query.DefaultReward, time.Second,
		)
		s.Require().NoError(err)

		_, err = svc.SubmitQuery(s.ctx, req)
		s.ErrorIs(err, sentinel.ErrNoResponders)
	})

	s.Run("selection fraction narrows the candidate set", func() {
		s.reset()
		// Scores give node-b a clear lead; fraction 0.4 of 3 -> 1 candidate.
		s.ledger.Update(map[id.Identity]float64{"node-b": 10})
		svc := s.newService(0.4)

		resp, err := svc.SubmitQuery(s.ctx, req)
		s.Require().NoError(err)
		s.Equal(id.Identity("node-b"), resp.Identity)
		s.Equal([]id.Identity{"node-b"}, s.dispatcher.calledIdentities())
	})
}

func (s *CoordinatorSuite) TestSubmitVariant() {
	req := query.Request{Network: "bitcoin", ModelType: "funds_flow", Prompt: "again", Temperature: 0.9}

	s.Run("dispatches to the named target only", func() {
		s.reset()
		svc := s.newService(1)
		resp, err := svc.SubmitVariant(s.ctx, "node-b", req)
		s.Require().NoError(err)
		s.Equal(id.Identity("node-b"), resp.Identity)
		s.Equal([]id.Identity{"node-b"}, s.dispatcher.calledIdentities())
	})

	s.Run("does not touch the ledger", func() {
		s.reset()
		svc := s.newService(1)
		_, err := svc.SubmitVariant(s.ctx, "node-b", req)
		s.Require().NoError(err)
		s.Zero(s.ledger.Score("node-b"))
	})

	s.Run("unknown target is not found", func() {
		s.reset()
		svc := s.newService(1)
		_, err := svc.SubmitVariant(s.ctx, "node-x", req)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("failed target surfaces as no responders", func() {
		s.reset()
		s.dispatcher.responses["node-b"] = query.Response{Identity: "node-b", Failure: query.FailureTimeout}
		svc := s.newService(1)
		_, err := svc.SubmitVariant(s.ctx, "node-b", req)
		s.ErrorIs(err, sentinel.ErrNoResponders)
	})
}

func TestDefaultReward(t *testing.T) {
	reward, ok := query.DefaultReward(query.Response{Identity: "node-a", Result: "data"})
	require.True(t, ok)
	require.Equal(t, 0.5, reward)

	_, ok = query.DefaultReward(query.Response{Identity: "node-a", Failure: query.FailureTimeout})
	require.False(t, ok)

	_, ok = query.DefaultReward(query.Response{Identity: "node-a"})
	require.False(t, ok)
}
