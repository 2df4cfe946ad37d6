package genome

import (
	"sort"

	"github.com/BaSui01/evoflow/types"
)

// Population 一代的有序基因组集合。Filter/Remove 之后规模必须不小于 MinSize。
type Population struct {
	Generation int
	MinSize    int
	genomes    []*Genome
}

// NewPopulation creates a population for generation.
func NewPopulation(generation, minSize int, genomes ...*Genome) *Population {
	return &Population{
		Generation: generation,
		MinSize:    minSize,
		genomes:    append([]*Genome(nil), genomes...),
	}
}

// Add appends genomes.
func (p *Population) Add(genomes ...*Genome) {
	p.genomes = append(p.genomes, genomes...)
}

// Len returns the population size.
func (p *Population) Len() int {
	return len(p.genomes)
}

// Genomes returns the genomes in order.
func (p *Population) Genomes() []*Genome {
	return append([]*Genome(nil), p.genomes...)
}

// Get returns a genome by id.
func (p *Population) Get(id string) (*Genome, bool) {
	for _, g := range p.genomes {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

// CheckMinSize returns a PopulationError when the population is undersized.
func (p *Population) CheckMinSize(operation string) error {
	if len(p.genomes) < p.MinSize {
		return types.NewPopulationError(operation, len(p.genomes), p.MinSize)
	}
	return nil
}

// Filter 返回满足谓词的新种群；结果小于最小规模时返回 PopulationError
func (p *Population) Filter(operation string, keep func(*Genome) bool) (*Population, error) {
	out := NewPopulation(p.Generation, p.MinSize)
	for _, g := range p.genomes {
		if keep(g) {
			out.genomes = append(out.genomes, g)
		}
	}
	if err := out.CheckMinSize(operation); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove 返回移除给定 ID 后的新种群
func (p *Population) Remove(operation string, ids ...string) (*Population, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return p.Filter(operation, func(g *Genome) bool { return !drop[g.ID] })
}

// Ranked 按分数降序排列（稳定），未评估的排在最后
func (p *Population) Ranked() []*Genome {
	out := p.Genomes()
	sort.SliceStable(out, func(i, j int) bool {
		fi, oki := out[i].Fitness()
		fj, okj := out[j].Fitness()
		if oki != okj {
			return oki
		}
		return fi.Score > fj.Score
	})
	return out
}

// Best returns the highest-scoring genome.
func (p *Population) Best() (*Genome, bool) {
	ranked := p.Ranked()
	if len(ranked) == 0 {
		return nil, false
	}
	return ranked[0], true
}

// Top returns up to n best genomes.
func (p *Population) Top(n int) []*Genome {
	if n <= 0 {
		return nil
	}
	ranked := p.Ranked()
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Evaluated returns genomes that have fitness.
func (p *Population) Evaluated() []*Genome {
	var out []*Genome
	for _, g := range p.genomes {
		if g.Evaluated() {
			out = append(out, g)
		}
	}
	return out
}

// MeanScore returns the mean score of evaluated genomes.
func (p *Population) MeanScore() float64 {
	evaluated := p.Evaluated()
	if len(evaluated) == 0 {
		return 0
	}
	var sum float64
	for _, g := range evaluated {
		sum += g.Score()
	}
	return sum / float64(len(evaluated))
}
