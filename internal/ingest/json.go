package ingest

// rawModel / rawModule / rawEntity / ... mirror the on-disk JSON shape
// described in spec §6 ("Model JSON"). Array fields that the spec requires
// to be non-null use a pointer-to-slice so an explicit JSON null (or an
// absent field; both decode to a nil pointer) is distinguishable from a
// present-but-empty array.
type rawModel struct {
	ExportedAtUtc string      `json:"exportedAtUtc"`
	Modules       []rawModule `json:"modules"`
}

type rawModule struct {
	Name     string      `json:"name"`
	IsSystem bool        `json:"isSystem"`
	IsActive bool        `json:"isActive"`
	Entities []rawEntity `json:"entities"`
}

type rawEntity struct {
	Name         string                `json:"name"`
	PhysicalName string                `json:"physicalName"`
	Schema       string                `json:"db_schema"`
	Catalog      string                `json:"catalog,omitempty"`
	IsStatic     bool                  `json:"isStatic"`
	IsExternal   bool                  `json:"isExternal"`
	IsActive     bool                  `json:"isActive"`
	Attributes   *[]rawAttribute       `json:"attributes"`
	Relationships *[]rawRelationship   `json:"relationships"`
	Indexes      *[]rawIndex           `json:"indexes"`
	Triggers     *[]rawTrigger         `json:"triggers"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
}

type rawReference struct {
	ToEntity              string `json:"toEntity"`
	ToTable               string `json:"toTable"`
	DeleteRuleCode        string `json:"deleteRuleCode"`
	HasDatabaseConstraint bool   `json:"hasDatabaseConstraint"`
}

type rawAttribute struct {
	LogicalName      string            `json:"logicalName"`
	ColumnName       string            `json:"columnName"`
	DataType         string            `json:"dataType"`
	IsMandatory      bool              `json:"isMandatory"`
	IsIdentifier     bool              `json:"isIdentifier"`
	IsAutoNumber     bool              `json:"isAutoNumber"`
	IsActive         bool              `json:"isActive"`
	Reference        *rawReference     `json:"reference,omitempty"`
	ObservedDefault  string            `json:"observedDefault,omitempty"`
	ObservedDataType string            `json:"observedDataType,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type rawConstraintColumn struct {
	OwnerColumn         string `json:"ownerColumn"`
	OwnerAttribute      string `json:"ownerAttribute"`
	ReferencedColumn    string `json:"referencedColumn"`
	ReferencedAttribute string `json:"referencedAttribute"`
	Ordinal             int    `json:"ordinal"`
}

type rawConstraint struct {
	Name             string                 `json:"name"`
	ReferencedSchema string                 `json:"referencedSchema"`
	ReferencedTable  string                 `json:"referencedTable"`
	OnDelete         string                 `json:"onDelete"`
	OnUpdate         string                 `json:"onUpdate"`
	Columns          []rawConstraintColumn  `json:"columns"`
}

type rawRelationship struct {
	ViaAttribute          string          `json:"viaAttribute"`
	ToEntity              string          `json:"toEntity"`
	ToTable               string          `json:"toTable"`
	DeleteRuleCode        string          `json:"deleteRuleCode"`
	HasDatabaseConstraint bool            `json:"hasDatabaseConstraint"`
	ActualConstraints     []rawConstraint `json:"actualConstraints"`
}

type rawIndex struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"isUnique"`
}

type rawTrigger struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}
