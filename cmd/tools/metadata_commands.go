package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/lychee-technology/breeze"
	"github.com/lychee-technology/breeze/internal"
)

func loadMetadata(args []string) (*internal.FileMetadataStore, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly one schema directory argument")
	}
	return internal.NewFileMetadataStore(args[0])
}

// runValidateMetadata loads a schema directory and prints one line per entity type.
func runValidateMetadata(args []string, out io.Writer) error {
	store, err := loadMetadata(args)
	if err != nil {
		return err
	}
	if _, err := internal.SortEntityTypes(store.EntityTypes()); err != nil {
		return err
	}

	for _, et := range store.EntityTypes() {
		keys := make([]string, 0, len(et.KeyProperties()))
		for _, kp := range et.KeyProperties() {
			keys = append(keys, kp.Name)
		}
		keyType := et.AutoGeneratedKeyType
		if keyType == "" {
			keyType = breeze.AutoGeneratedKeyNone
		}
		fmt.Fprintf(out, "%s table=%s keys=%s keyType=%s properties=%d relations=%d\n",
			et.QualifiedName(), et.Table(), strings.Join(keys, ","), keyType,
			len(et.DataProperties), len(et.ForeignKeyProperties()))
	}
	fmt.Fprintf(out, "%d entity types OK\n", len(store.EntityTypes()))
	return nil
}

// runSaveOrder prints entity types in the order inserts and updates run. Deletes run in reverse.
func runSaveOrder(args []string, out io.Writer) error {
	store, err := loadMetadata(args)
	if err != nil {
		return err
	}
	sorted, err := internal.SortEntityTypes(store.EntityTypes())
	if err != nil {
		return err
	}
	for i, et := range sorted {
		line := fmt.Sprintf("%d. %s", i+1, et.QualifiedName())
		if refs := et.SelfReferencingProperties(); len(refs) > 0 {
			names := make([]string, 0, len(refs))
			for _, p := range refs {
				names = append(names, p.Name)
			}
			line += " (self-referencing: " + strings.Join(names, ",") + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
