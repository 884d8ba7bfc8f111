package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/breeze"
)

func customerType() *breeze.EntityType {
	return &breeze.EntityType{
		Name:                 "Customer",
		Namespace:            "Sales",
		TableName:            "customers",
		AutoGeneratedKeyType: breeze.AutoGeneratedKeyIdentity,
		DataProperties: []*breeze.DataProperty{
			{Name: "id", DataType: breeze.DataTypeInt64, IsPartOfKey: true},
			{Name: "name", DataType: breeze.DataTypeString},
			{Name: "version", DataType: breeze.DataTypeInt32, ConcurrencyMode: breeze.ConcurrencyModeFixed},
			{Name: "createdAt", ColumnName: "created_at", DataType: breeze.DataTypeDateTime, IsNullable: true},
		},
	}
}

func orderType() *breeze.EntityType {
	return &breeze.EntityType{
		Name:                 "Order",
		Namespace:            "Sales",
		TableName:            "orders",
		AutoGeneratedKeyType: breeze.AutoGeneratedKeyKeyGenerator,
		DataProperties: []*breeze.DataProperty{
			{Name: "id", DataType: breeze.DataTypeInt64, IsPartOfKey: true},
			{Name: "customerId", ColumnName: "customer_id", DataType: breeze.DataTypeInt64, RelatedEntityTypeName: "Customer:#Sales"},
			{Name: "total", DataType: breeze.DataTypeDouble, IsNullable: true},
		},
	}
}

func categoryType() *breeze.EntityType {
	return &breeze.EntityType{
		Name:                 "Category",
		TableName:            "categories",
		AutoGeneratedKeyType: breeze.AutoGeneratedKeyIdentity,
		DataProperties: []*breeze.DataProperty{
			{Name: "id", DataType: breeze.DataTypeGuid, IsPartOfKey: true},
			{Name: "parentId", ColumnName: "parent_id", DataType: breeze.DataTypeGuid, IsNullable: true, RelatedEntityTypeName: "Category"},
			{Name: "name", DataType: breeze.DataTypeString},
		},
	}
}

func productType() *breeze.EntityType {
	return &breeze.EntityType{
		Name:      "Product",
		TableName: "products",
		DataProperties: []*breeze.DataProperty{
			{Name: "code", DataType: breeze.DataTypeString, IsPartOfKey: true},
			{Name: "name", DataType: breeze.DataTypeString},
			{Name: "rowVersion", DataType: breeze.DataTypeBinary, ConcurrencyMode: breeze.ConcurrencyModeFixed},
		},
	}
}

// staticMetadata is an in-memory MetadataStore.
type staticMetadata struct {
	types []*breeze.EntityType
}

func newStaticMetadata(types ...*breeze.EntityType) *staticMetadata {
	return &staticMetadata{types: types}
}

func (m *staticMetadata) EntityType(name string) (*breeze.EntityType, error) {
	for _, et := range m.types {
		if breeze.SameEntityTypeName(name, et) {
			return et, nil
		}
	}
	return nil, fmt.Errorf("entity type %q not found", name)
}

func (m *staticMetadata) EntityTypes() []*breeze.EntityType {
	return m.types
}

func testMetadata() *staticMetadata {
	return newStaticMetadata(customerType(), orderType(), categoryType(), productType())
}

type recordedOp struct {
	kind       string
	entityType string
	values     map[string]any
	set        map[string]any
	where      map[string]any
	limit      int
}

// fakeTx records every statement. Identity keys of integer type are assigned from nextIdentity.
type fakeTx struct {
	ops          []recordedOp
	nextIdentity int64

	insertErr      map[string]error
	updateAffected *int64
	updateErr      error
	deleteErr      error
	commitErr      error

	committed   bool
	rolledBack  bool
	rollbackErr error
}

func newFakeTx() *fakeTx {
	return &fakeTx{nextIdentity: 100}
}

func (t *fakeTx) Insert(_ context.Context, et *breeze.EntityType, values map[string]any) (map[string]any, error) {
	t.ops = append(t.ops, recordedOp{kind: "insert", entityType: et.Name, values: copyValues(values)})
	if err := t.insertErr[et.Name]; err != nil {
		return nil, err
	}
	row := copyValues(values)
	for _, kp := range et.KeyProperties() {
		if _, ok := row[kp.Name]; !ok && kp.DataType.IsNumeric() {
			t.nextIdentity++
			row[kp.Name] = t.nextIdentity
		}
	}
	return row, nil
}

func (t *fakeTx) Update(_ context.Context, et *breeze.EntityType, set, where map[string]any) (int64, error) {
	t.ops = append(t.ops, recordedOp{kind: "update", entityType: et.Name, set: copyValues(set), where: copyValues(where)})
	if t.updateErr != nil {
		return 0, t.updateErr
	}
	if t.updateAffected != nil {
		return *t.updateAffected, nil
	}
	return 1, nil
}

func (t *fakeTx) Delete(_ context.Context, et *breeze.EntityType, where map[string]any, limit int) error {
	t.ops = append(t.ops, recordedOp{kind: "delete", entityType: et.Name, where: copyValues(where), limit: limit})
	return t.deleteErr
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (int64, error) {
	t.ops = append(t.ops, recordedOp{kind: "exec", entityType: sql})
	return 0, nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	t.rollbackErr = ctx.Err()
	return nil
}

func (t *fakeTx) kinds() []string {
	kinds := make([]string, 0, len(t.ops))
	for _, op := range t.ops {
		kinds = append(kinds, op.kind+" "+op.entityType)
	}
	return kinds
}

type fakeRowStore struct {
	tx       *fakeTx
	beginErr error
}

func (s *fakeRowStore) BeginTx(context.Context) (breeze.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.tx, nil
}

func copyValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// entity builds a client payload with its entityAspect envelope.
func entity(typeName string, state breeze.EntityState, values map[string]any, aspect ...func(map[string]any)) breeze.Entity {
	e := breeze.Entity{}
	for k, v := range values {
		e[k] = v
	}
	a := map[string]any{
		"entityTypeName": typeName,
		"entityState":    string(state),
	}
	for _, fn := range aspect {
		fn(a)
	}
	e[breeze.EntityAspectField] = a
	return e
}

func withOriginalValues(ovm map[string]any) func(map[string]any) {
	return func(a map[string]any) { a["originalValuesMap"] = ovm }
}

func withForceUpdate() func(map[string]any) {
	return func(a map[string]any) { a["forceUpdate"] = true }
}

func sequenceKeys(start int64) breeze.KeyGenerator {
	next := start
	return breeze.KeyGeneratorFunc(func(context.Context, *breeze.EntityType, *breeze.DataProperty) (any, error) {
		next++
		return next, nil
	})
}
