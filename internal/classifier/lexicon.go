package classifier

import "github.com/WamalwaSydney/civicpulse/internal/domain"

// Lexicon holds the keyword tables used for adjustment, categorisation and
// location inference. Treat it as read-only once passed to New.
type Lexicon struct {
	Categories         map[string][]string
	PositiveIndicators []string
	NegativeIndicators []string

	// Patterns are tried in order when no category clears the threshold.
	Patterns []PatternRule

	// AdminUnits are words like "county" that qualify the preceding token.
	AdminUnits []string
	// Places are known cities and areas.
	Places []string
}

// PatternRule fires when any phrase occurs in the text. The first subject
// whose words occur decides the category; a rule adds at most one.
type PatternRule struct {
	Phrases  []string
	Subjects []PatternSubject
}

type PatternSubject struct {
	Category string
	Words    []string
}

// DefaultLexicon returns a fresh copy of the bilingual English/Swahili tables.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Categories: map[string][]string{
			domain.CategoryWaterSupply: {
				"water", "pipe", "supply", "tap", "borehole", "well", "dam", "reservoir",
				"maji", "bomba", "kiosk", "shortage", "quality", "clean", "dirty",
				"sewer", "sewage", "drainage", "flood",
			},
			domain.CategoryInfrastructure: {
				"road", "construction", "pothole", "bridge", "street", "highway",
				"barabara", "jengo", "building", "repair", "maintenance", "tarmac",
				"murram", "pathway", "sidewalk", "lighting", "streetlight",
			},
			domain.CategoryHealthcare: {
				"health", "hospital", "clinic", "doctor", "nurse", "medicine",
				"afya", "hospitali", "daktari", "treatment", "patient", "medical",
				"dispensary", "pharmacy", "drug", "vaccine", "immunization",
			},
			domain.CategoryEducation: {
				"school", "teacher", "student", "education", "classroom", "books",
				"shule", "mwalimu", "mwanafunzi", "elimu", "fees", "uniform",
				"exam", "grade", "university", "college", "learning",
			},
			domain.CategorySecurity: {
				"police", "security", "crime", "theft", "robbery", "safety",
				"polisi", "usalama", "wizi", "unyangavu", "askari", "patrol",
				"violence", "gang", "drugs", "murder", "assault",
			},
			domain.CategoryCorruption: {
				"corruption", "bribe", "kickback", "fraud", "embezzlement",
				"rushwa", "hongo", "steal", "misuse", "accountability",
				"transparency", "audit", "procurement",
			},
			domain.CategoryEnvironment: {
				"environment", "pollution", "waste", "garbage", "recycling",
				"mazingira", "uchafuzi", "taka", "forest", "tree", "climate",
				"air", "noise", "dumping", "conservation",
			},
		},
		PositiveIndicators: []string{
			"good", "excellent", "great", "satisfied", "happy", "improved",
			"nzuri", "safi", "poa", "vizuri", "furaha", "raha",
		},
		NegativeIndicators: []string{
			"bad", "terrible", "awful", "disappointed", "angry", "frustrated",
			"broken", "poor",
			"mbaya", "haya", "hasira", "uchungu", "vibaya",
		},
		Patterns: []PatternRule{
			{
				Phrases: []string{"not working", "broken", "damaged", "needs repair"},
				Subjects: []PatternSubject{
					{Category: domain.CategoryInfrastructure, Words: []string{"road", "street", "bridge"}},
					{Category: domain.CategoryWaterSupply, Words: []string{"water", "pipe", "tap"}},
				},
			},
			{
				Phrases: []string{"lack of", "shortage", "unavailable", "missing"},
				Subjects: []PatternSubject{
					{Category: domain.CategoryHealthcare, Words: []string{"medicine", "doctor", "treatment"}},
					{Category: domain.CategoryEducation, Words: []string{"teacher", "books", "classroom"}},
				},
			},
		},
		AdminUnits: []string{"county", "ward", "constituency"},
		Places: []string{
			"nairobi", "mombasa", "kisumu", "nakuru", "eldoret", "thika", "malindi",
			"kitale", "garissa", "kakamega", "nyeri", "machakos", "meru", "embu",
			"kibera", "kasarani", "westlands", "langata", "embakasi", "mathare",
		},
	}
}
