// Package config provides configuration structures and loading for knackrecon.
package config

// Config represents the complete application configuration.
type Config struct {
	API           APIConfig                 `yaml:"api" mapstructure:"api"`
	Establishment EstablishmentConfig       `yaml:"establishment" mapstructure:"establishment"`
	Collections   map[string]CollectionSpec `yaml:"collections" mapstructure:"collections"`
	Pairs         map[string]PairSpec       `yaml:"pairs" mapstructure:"pairs"`
	Chain         ChainSpec                 `yaml:"chain" mapstructure:"chain"`
	Archive       ArchiveConfig             `yaml:"archive" mapstructure:"archive"`
	Processing    ProcessingConfig          `yaml:"processing" mapstructure:"processing"`
	Logging       LoggingConfig             `yaml:"logging" mapstructure:"logging"`
}

// APIConfig holds the credentials and endpoint for the hosted data store.
type APIConfig struct {
	AppID   string `yaml:"app_id" mapstructure:"app_id"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EstablishmentConfig locates the scope-lookup collection.
type EstablishmentConfig struct {
	Object    string `yaml:"object" mapstructure:"object"`
	NameField string `yaml:"name_field" mapstructure:"name_field"`
}

// CollectionSpec names one record collection and maps its semantic fields
// to the store's opaque field keys. These used to live as module-level
// dictionaries duplicated per script; here they are immutable inputs
// passed into the indexer and matchers at construction.
type CollectionSpec struct {
	Object             string `yaml:"object" mapstructure:"object"`
	Label              string `yaml:"label" mapstructure:"label"`
	EmailField         string `yaml:"email_field" mapstructure:"email_field"`
	NameField          string `yaml:"name_field" mapstructure:"name_field"`
	EstablishmentField string `yaml:"establishment_field" mapstructure:"establishment_field"`
	YearGroupField     string `yaml:"year_group_field" mapstructure:"year_group_field"`
	TutorGroupField    string `yaml:"tutor_group_field" mapstructure:"tutor_group_field"`
	RoleField          string `yaml:"role_field" mapstructure:"role_field"`

	// PreservedFields survive an archive-and-clear run; everything else on
	// the record is blanked. Empty means the collection is never cleared.
	PreservedFields []string `yaml:"preserved_fields" mapstructure:"preserved_fields"`
}

// PairSpec declares a direct-connection relationship between two
// collections: Target carries ConnectionField pointing at Source records.
// Correspondence maps Source field keys to Target field keys when a
// missing Target counterpart has to be created from Source data.
type PairSpec struct {
	Source          string            `yaml:"source" mapstructure:"source"`
	Target          string            `yaml:"target" mapstructure:"target"`
	ConnectionField string            `yaml:"connection_field" mapstructure:"connection_field"`
	Correspondence  map[string]string `yaml:"correspondence" mapstructure:"correspondence"`
}

// HopSpec is one step of the chain. An empty ConnectionField means the hop
// resolves by shared normalized identifier. When set, the field lives on
// the From record and points at To, unless Reverse is true, in which case
// To records carry it pointing back at From.
//
// Correspondence maps From field keys to To field keys, used when a
// missing To counterpart is created from From data. A hop without a
// correspondence table has no create fix; its breaks are report-only.
type HopSpec struct {
	From            string            `yaml:"from" mapstructure:"from"`
	To              string            `yaml:"to" mapstructure:"to"`
	ConnectionField string            `yaml:"connection_field" mapstructure:"connection_field"`
	Reverse         bool              `yaml:"reverse" mapstructure:"reverse"`
	Correspondence  map[string]string `yaml:"correspondence" mapstructure:"correspondence"`
}

// ChainSpec declares the expected path a single logical student follows
// across all collections, plus which node's name field is authoritative.
type ChainSpec struct {
	Root          string    `yaml:"root" mapstructure:"root"`
	Role          string    `yaml:"role" mapstructure:"role"`
	Hops          []HopSpec `yaml:"hops" mapstructure:"hops"`
	SourceOfTruth string    `yaml:"source_of_truth" mapstructure:"source_of_truth"`
	Terminal      string    `yaml:"terminal" mapstructure:"terminal"`
}

// ArchiveConfig describes where archive snapshots go: the archive
// collection's field map plus a local directory for the CSV copies.
type ArchiveConfig struct {
	Object             string `yaml:"object" mapstructure:"object"`
	NameField          string `yaml:"name_field" mapstructure:"name_field"`
	EstablishmentField string `yaml:"establishment_field" mapstructure:"establishment_field"`
	ContentField       string `yaml:"content_field" mapstructure:"content_field"`
	DateField          string `yaml:"date_field" mapstructure:"date_field"`
	TypeField          string `yaml:"type_field" mapstructure:"type_field"`
	OutputDir          string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ProcessingConfig represents fetch and apply pacing settings.
type ProcessingConfig struct {
	PageSize      int     `yaml:"page_size" mapstructure:"page_size"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	KeepPolicy    string  `yaml:"keep_policy" mapstructure:"keep_policy"` // oldest or newest
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config preloaded with the production field maps
// for the four student-data collections and their relationships.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.knack.com/v1",
		},
		Establishment: EstablishmentConfig{
			Object:    "object_2",
			NameField: "field_44",
		},
		Collections: map[string]CollectionSpec{
			"accounts": {
				Object:             "object_3",
				Label:              "User Accounts",
				EmailField:         "field_70",
				NameField:          "field_69",
				EstablishmentField: "field_122",
				YearGroupField:     "field_550",
				TutorGroupField:    "field_708",
				RoleField:          "field_73",
			},
			"profiles": {
				Object:             "object_6",
				Label:              "Student Profiles",
				EmailField:         "field_91",
				NameField:          "field_90",
				EstablishmentField: "field_179",
				YearGroupField:     "field_548",
				TutorGroupField:    "field_565",
			},
			"results": {
				Object:             "object_10",
				Label:              "Assessment Results",
				EmailField:         "field_197",
				NameField:          "field_187",
				EstablishmentField: "field_133",
				YearGroupField:     "field_144",
				TutorGroupField:    "field_223",
				PreservedFields: []string{
					"field_133", "field_439", "field_187", "field_137",
					"field_197", "field_143", "field_568", "field_223",
					"field_2299", "field_145", "field_429", "field_2191",
					"field_144", "field_782",
				},
			},
			"responses": {
				Object:             "object_29",
				Label:              "Questionnaire Responses",
				EmailField:         "field_2732",
				NameField:          "field_1823",
				EstablishmentField: "field_1821",
				YearGroupField:     "field_1826",
				TutorGroupField:    "field_1824",
				PreservedFields: []string{
					"field_1821", "field_1823", "field_2732", "field_2069",
					"field_2071", "field_3266", "field_2070", "field_792",
					"field_1824", "field_1825", "field_1826", "field_1830",
				},
			},
		},
		Pairs: map[string]PairSpec{
			"results_responses": {
				Source:          "results",
				Target:          "responses",
				ConnectionField: "field_792",
				Correspondence: map[string]string{
					"field_197": "field_2732", // email
					"field_187": "field_1823", // name
					"field_133": "field_1821", // establishment
					"field_144": "field_1826", // year group
					"field_223": "field_1824", // tutor group
				},
			},
		},
		Chain: ChainSpec{
			Root: "accounts",
			Role: "Student",
			Hops: []HopSpec{
				{From: "accounts", To: "profiles"}, // identifier fallback
				{
					From:            "profiles",
					To:              "results",
					ConnectionField: "field_182",
					Correspondence: map[string]string{
						"field_91":   "field_197",  // email
						"field_90":   "field_187",  // name
						"field_179":  "field_133",  // establishment
						"field_548":  "field_144",  // year group
						"field_565":  "field_223",  // tutor group
						"field_190":  "field_439",  // staff admins
						"field_2177": "field_2191", // subject teachers
						"field_1682": "field_145",  // tutors
						"field_547":  "field_429",  // heads of year
					},
				},
				{
					From:            "results",
					To:              "responses",
					ConnectionField: "field_792",
					Reverse:         true,
					Correspondence: map[string]string{
						"field_197":  "field_2732", // email
						"field_187":  "field_1823", // name
						"field_133":  "field_1821", // establishment
						"field_144":  "field_1826", // year group
						"field_223":  "field_1824", // tutor group
						"field_568":  "field_1827", // level
						"field_439":  "field_2069", // staff admins
						"field_2191": "field_2071", // subject teachers
						"field_145":  "field_2070", // tutors
						"field_429":  "field_3266", // heads of year
					},
				},
			},
			SourceOfTruth: "profiles",
			Terminal:      "responses",
		},
		Archive: ArchiveConfig{
			Object:             "object_68",
			NameField:          "field_1593",
			EstablishmentField: "field_1594",
			ContentField:       "field_1595",
			DateField:          "field_1596",
			TypeField:          "field_3653",
			OutputDir:          "archive_exports",
		},
		Processing: ProcessingConfig{
			PageSize:      1000,
			RatePerSecond: 4,
			KeepPolicy:    "oldest",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Collection retrieves a collection spec by name.
func (c *Config) Collection(name string) (CollectionSpec, bool) {
	spec, ok := c.Collections[name]
	return spec, ok
}

// Pair retrieves a pair relationship by name.
func (c *Config) Pair(name string) (PairSpec, bool) {
	pair, ok := c.Pairs[name]
	return pair, ok
}
