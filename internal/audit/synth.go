package audit

import (
	"fmt"
	"math/rand"

	"github.com/david/subsidy-matcher/internal/models"
)

// Default grids for synthetic profiles. Values mirror what real traffic
// sends: administrative region names, catalog sector labels and the
// employee-count buckets of the intake form.
var (
	defaultRegions = []string{
		"Occitanie", "Île-de-France", "Auvergne-Rhône-Alpes", "Nouvelle-Aquitaine",
		"Bretagne", "Grand Est", "Hauts-de-France", "Provence-Alpes-Côte d'Azur",
		"Normandie", "Pays de la Loire", "Bourgogne-Franche-Comté", "Centre-Val de Loire",
		"Corse",
	}
	defaultSectors = []string{
		"agriculture", "industrie", "construction", "commerce", "transport",
		"tourisme", "numerique", "energie", "sante", "services",
	}
	defaultSizes = []string{"1-9", "10-249", "250-4999", "5000+"}

	projectPool = []string{
		"innovation", "export", "transition écologique", "modernisation",
		"embauche", "investissement",
	}
)

// Generator produces reproducible synthetic company profiles. The same seed
// and count always yield the same profiles, so audit runs stay comparable
// over time.
type Generator struct {
	rng     *rand.Rand
	Regions []string
	Sectors []string
	Sizes   []string
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:     rand.New(rand.NewSource(seed)),
		Regions: defaultRegions,
		Sectors: defaultSectors,
		Sizes:   defaultSizes,
	}
}

// Profiles returns n synthetic profiles walking the region x sector x size
// grid. The three dimensions rotate at different rates so small n still
// touches every value of every dimension before combinations repeat.
func (g *Generator) Profiles(n int) []models.CompanyProfile {
	out := make([]models.CompanyProfile, 0, n)
	for i := 0; i < n; i++ {
		region := g.Regions[i%len(g.Regions)]
		sector := g.Sectors[i%len(g.Sectors)]
		size := g.Sizes[i%len(g.Sizes)]

		projects := []string{projectPool[g.rng.Intn(len(projectPool))]}
		if g.rng.Intn(2) == 0 {
			projects = append(projects, projectPool[g.rng.Intn(len(projectPool))])
		}

		out = append(out, models.CompanyProfile{
			ID:             fmt.Sprintf("synth-%04d", i),
			Name:           fmt.Sprintf("Entreprise Synthétique %04d", i),
			Sector:         sector,
			Region:         region,
			EmployeeBucket: size,
			AnnualTurnover: float64(50_000 + g.rng.Intn(20_000)*1_000),
			FoundingYear:   1990 + g.rng.Intn(34),
			ProjectTypes:   projects,
			Description:    fmt.Sprintf("Entreprise du secteur %s basée en %s.", sector, region),
		})
	}
	return out
}
