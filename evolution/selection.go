package evolution

import (
	"fmt"
	"math/rand"

	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/types"
)

// Selector 父代与幸存者选择策略
type Selector interface {
	Name() string
	// PickParents 从按分数降序排列的基因组中选出 n 个互不相同的父代
	PickParents(rng *rand.Rand, ranked []*genome.Genome, n int) ([]*genome.Genome, error)
	// Survivors 选出进入下一代父代池的 n 个基因组，最小规模不变量由 Population 保证
	Survivors(rng *rand.Rand, pop *genome.Population, n int) (*genome.Population, error)
}

// NewSelector returns a selector by name.
func NewSelector(name string, tournamentSize, eliteCount int) (Selector, error) {
	switch name {
	case "tournament", "":
		return TournamentSelector{Size: tournamentSize}, nil
	case "rank":
		return RankSelector{}, nil
	case "elite":
		return EliteSelector{Count: eliteCount}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", name)
	}
}

// pickDistinct draws with pick until n distinct genomes are found.
func pickDistinct(rng *rand.Rand, ranked []*genome.Genome, n int, pick func() *genome.Genome) ([]*genome.Genome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) < n {
		return nil, types.NewGeneticOperationError("select", n, len(ranked))
	}
	seen := make(map[string]bool, n)
	out := make([]*genome.Genome, 0, n)
	for attempt := 0; len(out) < n && attempt < n*20; attempt++ {
		g := pick()
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		out = append(out, g)
	}
	// 随机抽取未能凑齐时按排名补足
	for _, g := range ranked {
		if len(out) == n {
			break
		}
		if !seen[g.ID] {
			seen[g.ID] = true
			out = append(out, g)
		}
	}
	return out, nil
}

func topSurvivors(pop *genome.Population, n int) (*genome.Population, error) {
	keep := make(map[string]bool, n)
	for _, g := range pop.Top(n) {
		keep[g.ID] = true
	}
	return pop.Filter("survivor selection", func(g *genome.Genome) bool { return keep[g.ID] })
}

// EliteSelector picks uniformly from the top Count genomes.
type EliteSelector struct {
	Count int
}

func (EliteSelector) Name() string { return "elite" }

func (s EliteSelector) PickParents(rng *rand.Rand, ranked []*genome.Genome, n int) ([]*genome.Genome, error) {
	count := s.Count
	if count < n {
		count = n
	}
	if count > len(ranked) {
		count = len(ranked)
	}
	return pickDistinct(rng, ranked, n, func() *genome.Genome { return ranked[rng.Intn(count)] })
}

func (EliteSelector) Survivors(rng *rand.Rand, pop *genome.Population, n int) (*genome.Population, error) {
	return topSurvivors(pop, n)
}

// TournamentSelector samples Size genomes and keeps the fittest.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string { return "tournament" }

func (s TournamentSelector) tournament(rng *rand.Rand, pool []*genome.Genome) *genome.Genome {
	size := s.Size
	if size <= 0 {
		size = 3
	}
	if size > len(pool) {
		size = len(pool)
	}
	best := pool[rng.Intn(len(pool))]
	for i := 1; i < size; i++ {
		candidate := pool[rng.Intn(len(pool))]
		if candidate.Score() > best.Score() {
			best = candidate
		}
	}
	return best
}

func (s TournamentSelector) PickParents(rng *rand.Rand, ranked []*genome.Genome, n int) ([]*genome.Genome, error) {
	return pickDistinct(rng, ranked, n, func() *genome.Genome { return s.tournament(rng, ranked) })
}

// Survivors runs tournaments without replacement.
func (s TournamentSelector) Survivors(rng *rand.Rand, pop *genome.Population, n int) (*genome.Population, error) {
	pool := pop.Genomes()
	keep := make(map[string]bool, n)
	for len(keep) < n && len(pool) > 0 {
		winner := s.tournament(rng, pool)
		keep[winner.ID] = true
		for i, g := range pool {
			if g == winner {
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}
	return pop.Filter("survivor selection", func(g *genome.Genome) bool { return keep[g.ID] })
}

// RankSelector 线性排名选择：第 i 名的权重为 len-i
type RankSelector struct{}

func (RankSelector) Name() string { return "rank" }

func (RankSelector) PickParents(rng *rand.Rand, ranked []*genome.Genome, n int) ([]*genome.Genome, error) {
	total := len(ranked) * (len(ranked) + 1) / 2
	return pickDistinct(rng, ranked, n, func() *genome.Genome {
		r := rng.Intn(total)
		for i := range ranked {
			r -= len(ranked) - i
			if r < 0 {
				return ranked[i]
			}
		}
		return ranked[len(ranked)-1]
	})
}

func (RankSelector) Survivors(rng *rand.Rand, pop *genome.Population, n int) (*genome.Population, error) {
	return topSurvivors(pop, n)
}
