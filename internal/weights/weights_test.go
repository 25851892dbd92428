package weights

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	id "palisade/pkg/domain"
)

const testBudget = 65535

func TestCompute(t *testing.T) {
	t.Run("weights are proportional and sum to the budget", func(t *testing.T) {
		scores := map[id.Identity]float64{
			"node-a": 3,
			"node-b": 1,
		}
		vector := Compute(scores, testBudget, 0)

		require.Len(t, vector, 2)
		require.Equal(t, uint64(testBudget), vector.Sum())

		byID := indexByIdentity(vector)
		ratio := float64(byID["node-a"]) / float64(byID["node-b"])
		require.InDelta(t, 3.0, ratio, 0.001)
	})

	t.Run("all-zero scores produce an all-zero vector", func(t *testing.T) {
		scores := map[id.Identity]float64{"node-a": 0, "node-b": 0}
		vector := Compute(scores, testBudget, 0)

		require.Len(t, vector, 2)
		require.Equal(t, uint64(0), vector.Sum())
	})

	t.Run("empty scores produce an empty vector", func(t *testing.T) {
		vector := Compute(nil, testBudget, 0)
		require.Empty(t, vector)
	})

	t.Run("negative and non-finite scores count as zero", func(t *testing.T) {
		scores := map[id.Identity]float64{
			"node-a": 1,
			"node-b": -5,
			"node-c": math.NaN(),
			"node-d": math.Inf(1),
		}
		vector := Compute(scores, testBudget, 0)

		byID := indexByIdentity(vector)
		require.Equal(t, uint64(testBudget), byID["node-a"])
		require.Equal(t, uint64(0), byID["node-b"])
		require.Equal(t, uint64(0), byID["node-c"])
		require.Equal(t, uint64(0), byID["node-d"])
	})

	t.Run("order is identity-lexicographic", func(t *testing.T) {
		scores := map[id.Identity]float64{"node-c": 1, "node-a": 2, "node-b": 3}
		vector := Compute(scores, testBudget, 0)

		require.Equal(t, id.Identity("node-a"), vector[0].Identity)
		require.Equal(t, id.Identity("node-b"), vector[1].Identity)
		require.Equal(t, id.Identity("node-c"), vector[2].Identity)
	})

	t.Run("deterministic for unchanged scores", func(t *testing.T) {
		scores := map[id.Identity]float64{
			"node-a": 0.123, "node-b": 0.456, "node-c": 0.789, "node-d": 0.1,
		}
		first := Compute(scores, testBudget, 0)
		second := Compute(scores, testBudget, 0)
		require.Equal(t, first, second)
	})

	t.Run("largest remainder never exceeds the budget", func(t *testing.T) {
		// Three equal scores against a budget not divisible by three.
		scores := map[id.Identity]float64{"node-a": 1, "node-b": 1, "node-c": 1}
		vector := Compute(scores, 100, 0)

		require.Equal(t, uint64(100), vector.Sum())
		for _, e := range vector {
			require.Contains(t, []uint64{33, 34}, e.Weight)
		}
	})

	t.Run("single identity takes the whole budget", func(t *testing.T) {
		vector := Compute(map[id.Identity]float64{"node-a": 0.4}, testBudget, 0)
		require.Equal(t, uint64(testBudget), vector.Sum())
	})
}

func TestComputeWithCap(t *testing.T) {
	t.Run("cap clamps the dominant identity", func(t *testing.T) {
		scores := map[id.Identity]float64{
			"node-a": 90,
			"node-b": 5,
			"node-c": 5,
		}
		vector := Compute(scores, 1000, 0.5)

		byID := indexByIdentity(vector)
		require.Equal(t, uint64(500), byID["node-a"])
		require.Equal(t, uint64(250), byID["node-b"])
		require.Equal(t, uint64(250), byID["node-c"])
	})

	t.Run("water-filling re-caps identities pushed over", func(t *testing.T) {
		scores := map[id.Identity]float64{
			"node-a": 60,
			"node-b": 30,
			"node-c": 10,
		}
		vector := Compute(scores, 1000, 0.4)

		byID := indexByIdentity(vector)
		require.Equal(t, uint64(400), byID["node-a"])
		// node-b's redistributed share exceeds the cap as well.
		require.Equal(t, uint64(400), byID["node-b"])
		require.Equal(t, uint64(200), byID["node-c"])
	})

	t.Run("cap zero disables capping", func(t *testing.T) {
		scores := map[id.Identity]float64{"node-a": 99, "node-b": 1}
		vector := Compute(scores, 1000, 0)
		byID := indexByIdentity(vector)
		require.Equal(t, uint64(990), byID["node-a"])
	})

	t.Run("infeasible cap sums below the budget", func(t *testing.T) {
		// cap*n = 0.2*2 < 1: everything ends capped.
		scores := map[id.Identity]float64{"node-a": 1, "node-b": 1}
		vector := Compute(scores, 1000, 0.2)
		require.LessOrEqual(t, vector.Sum(), uint64(1000))
		for _, e := range vector {
			require.Equal(t, uint64(200), e.Weight)
		}
	})
}

func indexByIdentity(v Vector) map[id.Identity]uint64 {
	out := make(map[id.Identity]uint64, len(v))
	for _, e := range v {
		out[e.Identity] = e.Weight
	}
	return out
}
