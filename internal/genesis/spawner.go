package genesis

import (
	"math/rand"
	"strconv"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
)

// Spawner issues ids and names for new markets and actors.
type Spawner struct {
	rng        *rand.Rand
	nextActor  actors.ID
	nextMarket uint64
	usedNames  map[string]bool
}

// NewSpawner creates a spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:        rand.New(rand.NewSource(seed + 300)),
		nextActor:  1,
		nextMarket: 1,
		usedNames:  make(map[string]bool),
	}
}

// SetNext sets the next ids to issue (used when restoring from the DB).
func (s *Spawner) SetNext(actor actors.ID, market uint64) {
	s.nextActor = actor
	s.nextMarket = market
}

// ActorID issues a fresh actor id.
func (s *Spawner) ActorID() actors.ID {
	id := s.nextActor
	s.nextActor++
	return id
}

// MarketID issues a fresh market id.
func (s *Spawner) MarketID() uint64 {
	id := s.nextMarket
	s.nextMarket++
	return id
}

var (
	placePrefixes = []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "High", "Low", "Old", "New",
		"Far", "Deep", "Broad", "Gold", "Thorn", "Elm", "Oak", "River",
	}
	placeSuffixes = []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "stead",
		"field", "dale", "vale", "port", "bury", "brook", "moor", "reach",
	}
	familyNames = []string{
		"Ashdown", "Barrow", "Cole", "Dunmore", "Elling", "Fairweather",
		"Garrow", "Hale", "Ives", "Kettle", "Lark", "Marsh", "Nye",
		"Oakes", "Pell", "Rook", "Stott", "Thorne", "Vale", "Wren",
	}
)

// PlaceName returns a market name not issued before by this spawner.
func (s *Spawner) PlaceName() string {
	for i := 0; i < 64; i++ {
		name := placePrefixes[s.rng.Intn(len(placePrefixes))] + placeSuffixes[s.rng.Intn(len(placeSuffixes))]
		if !s.usedNames[name] {
			s.usedNames[name] = true
			return name
		}
	}
	// Name space exhausted; fall back to a numbered name.
	return placePrefixes[0] + placeSuffixes[0] + " " + strconv.FormatUint(s.nextMarket, 10)
}

// PopName names a pop after a family.
func (s *Spawner) PopName() string {
	return "the " + familyNames[s.rng.Intn(len(familyNames))] + "s"
}

// Jitter returns a factor in [1-spread, 1+spread].
func (s *Spawner) Jitter(spread float64) float64 {
	return 1 + (s.rng.Float64()*2-1)*spread
}

// Pick returns a random index below n.
func (s *Spawner) Pick(n int) int {
	return s.rng.Intn(n)
}
