package scoring

// Categories.
const (
	CategoryFinancialCrisis = "financial_crisis"
	CategoryMonetaryPolicy  = "monetary_policy"
	CategoryGeopolitical    = "geopolitical"
	CategoryEconomicData    = "economic_data"
	CategorySupplyShock     = "supply_shock"
)

var structuralBase = map[string]int{
	CategoryFinancialCrisis: 90,
	CategoryMonetaryPolicy:  75,
	CategoryGeopolitical:    70,
	CategoryEconomicData:    55,
	CategorySupplyShock:     80,
}

var transmissionBase = map[string]int{
	CategoryFinancialCrisis: 80,
	CategoryMonetaryPolicy:  80,
	CategoryGeopolitical:    65,
	CategoryEconomicData:    55,
	CategorySupplyShock:     75,
}

var historicalBase = map[string]int{
	CategoryFinancialCrisis: 80,
	CategoryMonetaryPolicy:  65,
	CategoryGeopolitical:    60,
	CategoryEconomicData:    50,
	CategorySupplyShock:     70,
}

var sourceAttentionBase = map[string]int{
	"reuters":     60,
	"ap":          55,
	"google_news": 45,
}

const (
	defaultStructural   = 40
	defaultTransmission = 35
	defaultHistorical   = 30
	defaultAttention    = 50
)

var categoryAliases = map[string]string{
	"monetary":       CategoryMonetaryPolicy,
	"central_bank":   CategoryMonetaryPolicy,
	"rate_decision":  CategoryMonetaryPolicy,
	"geopolitics":    CategoryGeopolitical,
	"sanctions":      CategoryGeopolitical,
	"war":            CategoryGeopolitical,
	"crisis":         CategoryFinancialCrisis,
	"banking_crisis": CategoryFinancialCrisis,
	"data":           CategoryEconomicData,
	"macro_data":     CategoryEconomicData,
	"supply":         CategorySupplyShock,
	"energy":         CategorySupplyShock,
}

var majorRegions = map[string]bool{
	"US": true, "EU": true, "CHINA": true, "UK": true, "JAPAN": true, "GLOBAL": true,
}

// regionAliases map upper-cased names to region codes. Short codes are
// matched case-sensitively in text so that "us" the pronoun is ignored.
var regionAliases = map[string]string{
	"UNITED STATES":            "US",
	"UNITED STATES OF AMERICA": "US",
	"USA":                      "US",
	"U.S.":                     "US",
	"US":                       "US",
	"EUROPE":                   "EU",
	"EUROZONE":                 "EU",
	"EURO ZONE":                "EU",
	"EU":                       "EU",
	"UNITED KINGDOM":           "UK",
	"BRITAIN":                  "UK",
	"UK":                       "UK",
	"CHINA":                    "CHINA",
	"CHINESE":                  "CHINA",
	"JAPAN":                    "JAPAN",
	"JAPANESE":                 "JAPAN",
	"GLOBAL":                   "GLOBAL",
	"WORLD":                    "GLOBAL",
	"WORLDWIDE":                "GLOBAL",
}

// entityAliases map lower-cased institution names to one canonical code.
var entityAliases = map[string]string{
	"federal reserve":        "fed",
	"fed":                    "fed",
	"fomc":                   "fed",
	"european central bank":  "ecb",
	"ecb":                    "ecb",
	"people's bank of china": "pboc",
	"pboc":                   "pboc",
	"bank of japan":          "boj",
	"boj":                    "boj",
	"bank of england":        "boe",
	"boe":                    "boe",
	"imf":                    "imf",
	"opec":                   "opec",
	"treasury":               "treasury",
}

var majorEntities = map[string]bool{
	"fed": true, "ecb": true, "pboc": true, "boj": true, "boe": true,
	"imf": true, "opec": true, "treasury": true,
}

// Term lists are matched as substrings of the lower-cased event text.
var (
	monetaryTerms     = []string{"rate", "rates", "central bank", "fed", "ecb", "boj", "pboc", "hike"}
	crisisTerms       = []string{"crisis", "default", "bank", "collapse", "liquidity", "bailout"}
	geopoliticalTerms = []string{"war", "sanction", "invasion", "conflict", "missile"}
	supplyTerms       = []string{"supply", "production", "strike", "shutdown", "export ban", "mine"}
	econDataTerms     = []string{"cpi", "inflation", "gdp", "jobs", "payrolls", "unemployment", "pmi"}

	defaultTopicTerms = []string{"gold", "silver", "copper"}
	metalTerms        = []string{"metals", "bullion"}
	macroTerms        = []string{"rate", "rates", "inflation", "cpi", "yield", "usd", "dollar"}
	historicalTerms   = []string{"crisis", "default", "war", "recession", "sanction", "bank"}
	attentionTerms    = []string{"breaking", "urgent", "emergency", "surprise", "unexpected", "shock"}
)
