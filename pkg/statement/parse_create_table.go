// Package statement parses CREATE TABLE DDL into a StructModel the
// struct-metadata extractor can diff and replay against a target
// engine. It deliberately covers only what that
// extractor needs: column list, primary/unique/plain indexes,
// foreign-key constraints, and a handful of table-level options.
// Partition DDL, generated columns and other MySQL-specific extensions
// are out of scope; statement.ParseCreateTable rejects nothing it
// can't represent, it just omits it from the model.
package statement

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/replibridge/replibridge/pkg/row"
)

// ColumnDef describes one column of a parsed CREATE TABLE.
type ColumnDef struct {
	Name     string
	Type     string // native type as rendered by the parser, e.g. "varchar(255)"
	Length   *int
	Nullable bool
	AutoInc  bool
	Default  string
	Comment  string
}

// IndexDef describes one index or key clause.
type IndexDef struct {
	Name    string
	Columns []string
	Primary bool
	Unique  bool
}

// ConstraintDef describes a foreign key constraint.
type ConstraintDef struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
}

// CreateTable is the structured form of one parsed CREATE TABLE
// statement.
type CreateTable struct {
	TableName   string
	Columns     []ColumnDef
	Indexes     []IndexDef
	Constraints []ConstraintDef
	Options     map[string]string
}

// ParsedCreateTable wraps CreateTable with the accessor methods the
// struct extractor uses; GetCreateTable exposes the underlying value
// for callers that want direct field access.
type ParsedCreateTable struct {
	ct *CreateTable
}

func (p *ParsedCreateTable) GetTableName() string             { return p.ct.TableName }
func (p *ParsedCreateTable) GetColumns() []ColumnDef           { return p.ct.Columns }
func (p *ParsedCreateTable) GetIndexes() []IndexDef            { return p.ct.Indexes }
func (p *ParsedCreateTable) GetTableOptions() map[string]string { return p.ct.Options }
func (p *ParsedCreateTable) GetCreateTable() *CreateTable       { return p.ct }

// ToStructModel converts a parsed CREATE TABLE into the row.StructModel
// shape DdlData.Meta carries, so a CDC-observed CREATE TABLE can travel
// through the pipeline the same way a struct-migration DDL event does.
// Foreign key constraints are rendered back to a single definition
// string since row.ConstraintDef keeps no structured ref-table/columns
// fields of its own.
func (p *ParsedCreateTable) ToStructModel(schema string) row.StructModel {
	sm := row.StructModel{Schema: schema, Table: p.ct.TableName}
	for _, c := range p.ct.Columns {
		cd := row.ColumnDef{Name: c.Name, Type: c.Type, Nullable: c.Nullable, AutoInc: c.AutoInc}
		if c.Default != "" {
			d := c.Default
			cd.Default = &d
		}
		if c.Comment != "" {
			cm := c.Comment
			cd.Comment = &cm
		}
		sm.Columns = append(sm.Columns, cd)
	}
	for _, idx := range p.ct.Indexes {
		sm.Indexes = append(sm.Indexes, row.IndexDef{
			Name:    idx.Name,
			Columns: idx.Columns,
			Unique:  idx.Unique,
			Primary: idx.Primary,
		})
	}
	for _, c := range p.ct.Constraints {
		sm.Constraints = append(sm.Constraints, row.ConstraintDef{
			Name:       c.Name,
			Type:       "FOREIGN KEY",
			Definition: fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", strings.Join(c.Columns, ", "), c.RefTable, strings.Join(c.RefColumns, ", ")),
		})
	}
	return sm
}

// ParseCreateTable parses a single CREATE TABLE statement using the
// same tidb parser utils.go already depends on for ALTER linting.
func ParseCreateTable(sql string) (*ParsedCreateTable, error) {
	p := parser.New()
	stmtNodes, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("statement: parsing CREATE TABLE: %w", err)
	}
	if len(stmtNodes) == 0 {
		return nil, fmt.Errorf("statement: empty statement")
	}
	createStmt, ok := stmtNodes[0].(*ast.CreateTableStmt)
	if !ok {
		return nil, fmt.Errorf("statement: not a CREATE TABLE statement")
	}

	ct := &CreateTable{
		TableName: createStmt.Table.Name.O,
		Options:   map[string]string{},
	}

	for _, col := range createStmt.Cols {
		ct.Columns = append(ct.Columns, parseColumnDef(col))
		// A column-level PRIMARY KEY or UNIQUE stays among the column's
		// options in the parser's AST; record it as an index as well.
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionPrimaryKey:
				ct.Indexes = append(ct.Indexes, IndexDef{Name: "PRIMARY", Columns: []string{col.Name.Name.O}, Primary: true, Unique: true})
			case ast.ColumnOptionUniqKey:
				ct.Indexes = append(ct.Indexes, IndexDef{Name: col.Name.Name.O, Columns: []string{col.Name.Name.O}, Unique: true})
			}
		}
	}
	for _, cons := range createStmt.Constraints {
		switch cons.Tp {
		case ast.ConstraintPrimaryKey:
			ct.Indexes = append(ct.Indexes, IndexDef{
				Name:    "PRIMARY",
				Columns: indexPartNames(cons.Keys),
				Primary: true,
				Unique:  true,
			})
		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			ct.Indexes = append(ct.Indexes, IndexDef{
				Name:    cons.Name,
				Columns: indexPartNames(cons.Keys),
				Unique:  true,
			})
		case ast.ConstraintKey, ast.ConstraintIndex:
			ct.Indexes = append(ct.Indexes, IndexDef{
				Name:    cons.Name,
				Columns: indexPartNames(cons.Keys),
			})
		case ast.ConstraintForeignKey:
			fk := ConstraintDef{
				Name:    cons.Name,
				Columns: indexPartNames(cons.Keys),
			}
			if cons.Refer != nil {
				fk.RefTable = cons.Refer.Table.Name.O
				for _, c := range cons.Refer.IndexPartSpecifications {
					fk.RefColumns = append(fk.RefColumns, c.Column.Name.O)
				}
			}
			ct.Constraints = append(ct.Constraints, fk)
		}
	}

	for _, opt := range createStmt.Options {
		switch opt.Tp {
		case ast.TableOptionEngine:
			ct.Options["engine"] = opt.StrValue
		case ast.TableOptionCharset:
			ct.Options["charset"] = opt.StrValue
		case ast.TableOptionCollate:
			ct.Options["collation"] = opt.StrValue
		case ast.TableOptionComment:
			ct.Options["comment"] = opt.StrValue
		case ast.TableOptionAutoIncrement:
			ct.Options["auto_increment"] = fmt.Sprintf("%d", opt.UintValue)
		case ast.TableOptionRowFormat:
			ct.Options["row_format"] = rowFormatName(opt.UintValue)
		}
	}

	return &ParsedCreateTable{ct: ct}, nil
}

func parseColumnDef(col *ast.ColumnDef) ColumnDef {
	cd := ColumnDef{
		Name:     col.Name.Name.O,
		Type:     strings.ToLower(col.Tp.String()),
		Nullable: true,
	}
	if flen := col.Tp.GetFlen(); flen > 0 {
		l := flen
		cd.Length = &l
	}
	for _, opt := range col.Options {
		switch opt.Tp {
		case ast.ColumnOptionNotNull:
			cd.Nullable = false
		case ast.ColumnOptionNull:
			cd.Nullable = true
		case ast.ColumnOptionAutoIncrement:
			cd.AutoInc = true
		case ast.ColumnOptionPrimaryKey:
			cd.Nullable = false
		case ast.ColumnOptionDefaultValue:
			if opt.Expr != nil {
				if v, ok := opt.Expr.(ast.ValueExpr); ok {
					cd.Default = fmt.Sprintf("%v", v.GetValue())
				}
			}
		case ast.ColumnOptionComment:
			if opt.Expr != nil {
				if v, ok := opt.Expr.(ast.ValueExpr); ok {
					cd.Comment = fmt.Sprintf("%v", v.GetValue())
				}
			}
		}
	}
	return cd
}

func indexPartNames(keys []*ast.IndexPartSpecification) []string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.Column != nil {
			names = append(names, k.Column.Name.O)
		}
	}
	return names
}

// rowFormatName maps the parser's numeric ROW_FORMAT constant back to
// its SQL keyword; only the values MySQL accepts in practice.
func rowFormatName(v uint64) string {
	switch v {
	case 1:
		return "DEFAULT"
	case 2:
		return "DYNAMIC"
	case 3:
		return "FIXED"
	case 4:
		return "COMPRESSED"
	case 5:
		return "REDUNDANT"
	case 6:
		return "COMPACT"
	default:
		return ""
	}
}
