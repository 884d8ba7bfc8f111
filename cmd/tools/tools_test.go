package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/lychee-technology/breeze/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaDir = "../../internal/testdata/metadata"

func TestRunValidateMetadata(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runValidateMetadata([]string{schemaDir}, &out))

	output := out.String()
	assert.Contains(t, output, "Customer:#Sales table=customers keys=id keyType=Identity properties=5 relations=0")
	assert.Contains(t, output, "Order:#Sales table=orders keys=id keyType=KeyGenerator properties=3 relations=1")
	assert.Contains(t, output, "3 entity types OK")

	assert.Error(t, runValidateMetadata(nil, &out))
	assert.Error(t, runValidateMetadata([]string{t.TempDir()}, &out))
}

func TestRunValidateMetadata_Cycle(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("a.json", `{"title": "A", "x-key": ["id"], "properties": {"id": {"type": "integer"}, "bId": {"type": "integer", "x-relation": {"target": "B"}}}}`)
	write("b.json", `{"title": "B", "x-key": ["id"], "properties": {"id": {"type": "integer"}, "aId": {"type": "integer", "x-relation": {"target": "A"}}}}`)

	var out bytes.Buffer
	err := runValidateMetadata([]string{dir}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEPENDENCY_CYCLE")
}

func TestRunSaveOrder(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runSaveOrder([]string{schemaDir}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	customer := slices.IndexFunc(lines, func(l string) bool { return strings.Contains(l, "Customer:#Sales") })
	order := slices.IndexFunc(lines, func(l string) bool { return strings.Contains(l, "Order:#Sales") })
	assert.Less(t, customer, order)
	assert.True(t, slices.ContainsFunc(lines, func(l string) bool {
		return strings.HasSuffix(l, "Category (self-referencing: parentId)")
	}))
}

func TestBuildSchemaDDL(t *testing.T) {
	store, err := internal.NewFileMetadataStore(schemaDir)
	require.NoError(t, err)

	stmts, err := buildSchemaDDL(store, "_seq")
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	ddl := strings.Join(stmts, "\n")
	assert.Contains(t, ddl, `CREATE SEQUENCE IF NOT EXISTS "orders_id_seq"`)
	assert.Contains(t, ddl, `"id" BIGINT GENERATED BY DEFAULT AS IDENTITY`)
	assert.Contains(t, ddl, `"name" TEXT NOT NULL`)
	assert.Contains(t, ddl, `"created_at" TIMESTAMP`)
	assert.Contains(t, ddl, `"total" NUMERIC`)
	assert.Contains(t, ddl, `FOREIGN KEY ("customer_id") REFERENCES "customers" ("id")`)
	assert.Contains(t, ddl, `FOREIGN KEY ("parent_id") REFERENCES "categories" ("id")`)
	assert.Contains(t, ddl, `"id" UUID NOT NULL`)

	customers := slices.IndexFunc(stmts, func(s string) bool { return strings.Contains(s, `TABLE IF NOT EXISTS "customers"`) })
	orders := slices.IndexFunc(stmts, func(s string) bool { return strings.Contains(s, `TABLE IF NOT EXISTS "orders"`) })
	assert.Less(t, customers, orders)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"hr"."employees"`, quoteIdentifier("hr.employees"))
	assert.Equal(t, `"orders"`, quoteIdentifier(" orders "))
}
