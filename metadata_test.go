package breeze

import (
	"testing"
)

func employeeType() *EntityType {
	return &EntityType{
		Name:      "Employee",
		Namespace: "HR",
		DataProperties: []*DataProperty{
			{Name: "id", DataType: DataTypeInt64, IsPartOfKey: true},
			{Name: "managerId", ColumnName: "manager_id", DataType: DataTypeInt64, IsNullable: true, RelatedEntityTypeName: "Employee"},
			{Name: "departmentId", DataType: DataTypeInt32, RelatedEntityTypeName: "Department:#HR"},
			{Name: "rowVersion", DataType: DataTypeBinary, ConcurrencyMode: ConcurrencyModeFixed},
		},
	}
}

func TestEntityType_Names(t *testing.T) {
	et := employeeType()
	if et.QualifiedName() != "Employee:#HR" {
		t.Errorf("Expected Employee:#HR, got %s", et.QualifiedName())
	}
	if et.Table() != "Employee" {
		t.Errorf("Expected table to default to the type name, got %s", et.Table())
	}
	et.TableName = "hr.employees"
	if et.Table() != "hr.employees" {
		t.Errorf("Expected hr.employees, got %s", et.Table())
	}
	if (&EntityType{Name: "Tag"}).QualifiedName() != "Tag" {
		t.Error("Expected a type without namespace to use its short name")
	}
}

func TestEntityType_Properties(t *testing.T) {
	et := employeeType()

	if p := et.Property("managerId"); p == nil || p.Column() != "manager_id" {
		t.Errorf("Expected managerId to map to manager_id, got %+v", p)
	}
	if p := et.Property("id"); p.Column() != "id" {
		t.Errorf("Expected id column, got %s", p.Column())
	}
	if et.Property("salary") != nil {
		t.Error("Expected unknown property to be nil")
	}

	if keys := et.KeyProperties(); len(keys) != 1 || keys[0].Name != "id" {
		t.Errorf("Expected single key id, got %v", keys)
	}
	if fks := et.ForeignKeyProperties(); len(fks) != 2 {
		t.Errorf("Expected 2 foreign keys, got %d", len(fks))
	}
	refs := et.SelfReferencingProperties()
	if len(refs) != 1 || refs[0].Name != "managerId" {
		t.Errorf("Expected managerId to be self referencing, got %v", refs)
	}
	cp := et.ConcurrencyProperties()
	if len(cp) != 1 || cp[0].Name != "rowVersion" {
		t.Errorf("Expected rowVersion concurrency property, got %v", cp)
	}
}

func TestSameEntityTypeName(t *testing.T) {
	et := employeeType()
	tests := []struct {
		name string
		et   *EntityType
		want bool
	}{
		{"Employee", et, true},
		{"Employee:#HR", et, true},
		{"Employee:#Sales", et, false},
		{"Manager", et, false},
		{"Tag:#Blog", &EntityType{Name: "Tag"}, true},
		{"Tag", nil, false},
	}
	for _, tt := range tests {
		if got := SameEntityTypeName(tt.name, tt.et); got != tt.want {
			t.Errorf("SameEntityTypeName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if ShortTypeName("Employee:#HR") != "Employee" || ShortTypeName("Employee") != "Employee" {
		t.Error("ShortTypeName did not strip the namespace")
	}
}

func TestParseAutoGeneratedKeyType(t *testing.T) {
	tests := map[string]AutoGeneratedKeyType{
		"":              AutoGeneratedKeyNone,
		"None":          AutoGeneratedKeyNone,
		"identity":      AutoGeneratedKeyIdentity,
		" KeyGenerator": AutoGeneratedKeyKeyGenerator,
	}
	for raw, want := range tests {
		got, err := ParseAutoGeneratedKeyType(raw)
		if err != nil {
			t.Errorf("ParseAutoGeneratedKeyType(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseAutoGeneratedKeyType(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseAutoGeneratedKeyType("Sequence"); err == nil {
		t.Error("Expected unknown key type to fail")
	}
}

func TestDataTypeClassification(t *testing.T) {
	if !DataTypeDecimal.IsNumeric() || !DataTypeInt16.IsNumeric() {
		t.Error("Expected decimal and int16 to be numeric")
	}
	if DataTypeGuid.IsNumeric() || DataTypeString.IsNumeric() {
		t.Error("Expected guid and string not to be numeric")
	}
	if !DataTypeDateTime.IsDate() || !DataTypeDateTimeOffset.IsDate() {
		t.Error("Expected DateTime and DateTimeOffset to be dates")
	}
	if DataTypeTime.IsDate() {
		t.Error("Expected Time not to be a date")
	}
}

func TestPropertySchema_TypeNames(t *testing.T) {
	tests := []struct {
		typ  any
		want int
	}{
		{"string", 1},
		{[]any{"string", "null"}, 2},
		{[]string{"integer"}, 1},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := (&PropertySchema{Type: tt.typ}).TypeNames(); len(got) != tt.want {
			t.Errorf("TypeNames(%v) = %v", tt.typ, got)
		}
	}
}
