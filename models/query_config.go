package models

import "encoding/json"

// ColumnFormat is a display directive for a result column ("duration",
// "readable-bytes", "code", ...). The gateway passes it through untouched.
type ColumnFormat string

// SQLVariant is one SQL text for a query, valid from a server version onwards.
type SQLVariant struct {
	// Since is the lowest server version this SQL runs on.
	Since ServerVersion `json:"since"`

	// SQL is the query text.
	SQL string `json:"sql"`

	// Description says what changed compared to the previous variant.
	Description string `json:"description"`

	// Columns overrides QueryConfig.Columns when set.
	Columns []string `json:"columns,omitempty"`
}

// QueryConfig is a named, static query definition from the catalog.
//
// A config has either a single SQL text or a list of Variants sorted
// ascending by Since. Configs are built once at startup and never mutated.
type QueryConfig struct {
	// Name is the unique lookup key.
	Name string `json:"name"`

	// SQL is used when the config is not versioned.
	SQL string `json:"-"`

	// Variants holds the versioned SQL texts, oldest first.
	Variants []SQLVariant `json:"-"`

	// Columns lists the result columns in display order.
	Columns []string `json:"columns"`

	// ColumnFormats maps column name to a display directive.
	ColumnFormats map[string]ColumnFormat `json:"columnFormats,omitempty"`

	// DefaultParams are bound when the request does not supply a value.
	DefaultParams Params `json:"defaultParams,omitempty"`

	// Optional marks queries over system tables that may not exist on every
	// server. Missing-table failures for these are reported as empty data.
	Optional bool `json:"optional,omitempty"`

	// TableCheck lists the tables the query depends on.
	TableCheck []string `json:"tableCheck,omitempty"`

	// DisableSQLValidation skips the unsafe-shape denylist for trusted
	// catalog SQL that legitimately contains denylisted words.
	DisableSQLValidation bool `json:"disableSqlValidation,omitempty"`
}

// IsVersioned reports whether the config carries SQL variants.
func (c *QueryConfig) IsVersioned() bool {
	return len(c.Variants) > 0
}

// GetSQL returns the SQL text to execute on a server of the given version.
// Unversioned configs return their SQL unchanged regardless of version.
func (c *QueryConfig) GetSQL(version *ServerVersion) string {
	if !c.IsVersioned() {
		return c.SQL
	}
	return SelectVersionedSQL(c.Variants, version)
}

// ColumnsFor returns the result columns for the given server version,
// honouring a per-variant override.
func (c *QueryConfig) ColumnsFor(version *ServerVersion) []string {
	if !c.IsVersioned() {
		return c.Columns
	}
	v := SelectVariant(c.Variants, version)
	if len(v.Columns) > 0 {
		return v.Columns
	}
	return c.Columns
}

// SelectVariant picks the variant for version from variants sorted ascending
// by Since. The newest variant whose Since <= version wins. When the version
// is unknown or older than every variant, the earliest variant is returned:
// it is the most conservative SQL and is assumed to run on the oldest
// supported server.
func SelectVariant(variants []SQLVariant, version *ServerVersion) SQLVariant {
	if len(variants) == 0 {
		return SQLVariant{}
	}
	if version == nil {
		return variants[0]
	}
	for i := len(variants) - 1; i >= 0; i-- {
		if Compare(variants[i].Since, *version) <= 0 {
			return variants[i]
		}
	}
	return variants[0]
}

// SelectVersionedSQL returns the SQL text of SelectVariant.
func SelectVersionedSQL(variants []SQLVariant, version *ServerVersion) string {
	return SelectVariant(variants, version).SQL
}

// MarshalJSON renders "sql" as a string for plain configs and as the list of
// variants for versioned ones.
func (c QueryConfig) MarshalJSON() ([]byte, error) {
	type plain QueryConfig
	var sql any = c.SQL
	if c.IsVersioned() {
		sql = c.Variants
	}
	return json.Marshal(struct {
		plain
		SQL any `json:"sql"`
	}{plain: plain(c), SQL: sql})
}
