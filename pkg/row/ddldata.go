package row

// DdlType classifies a DdlData event. Unknown is used for struct
// migration replay, where the original DDL intent doesn't matter --
// only that it is idempotent to re-apply.
type DdlType int

const (
	DdlUnknown DdlType = iota
	DdlCreateTable
	DdlAlterTable
	DdlDropTable
	DdlCreateIndex
	DdlDropIndex
	DdlTruncateTable
	DdlRenameTable
)

func (t DdlType) String() string {
	switch t {
	case DdlCreateTable:
		return "create_table"
	case DdlAlterTable:
		return "alter_table"
	case DdlDropTable:
		return "drop_table"
	case DdlCreateIndex:
		return "create_index"
	case DdlDropIndex:
		return "drop_index"
	case DdlTruncateTable:
		return "truncate_table"
	case DdlRenameTable:
		return "rename_table"
	default:
		return "unknown"
	}
}

// StructModel is the DDL metadata a struct-migration or DDL-replay
// event optionally carries: table definition, indexes, and
// constraints, in dependency order so a replay never references an
// index or constraint before its table exists.
type StructModel struct {
	Schema      string
	Table       string
	Columns     []ColumnDef
	Indexes     []IndexDef
	Constraints []ConstraintDef
}

type ColumnDef struct {
	Name     string
	Type     string // engine-native type string, e.g. "varchar(255)"
	Nullable bool
	AutoInc  bool
	Default  *string
	Comment  *string
}

type IndexDef struct {
	Name      string
	Columns   []string
	Unique    bool
	Primary   bool
	Using     *string
	Invisible *bool
}

type ConstraintDef struct {
	Name       string
	Type       string // "FOREIGN KEY", "CHECK", "UNIQUE", ...
	Definition string
}

// DdlData is emitted for struct migration and for DDL observed on the
// CDC stream.
type DdlData struct {
	Schema string
	Query  string
	Meta   *StructModel
	Type   DdlType
}
