package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

// ImportError describes why a single CSV row was not imported.
type ImportError struct {
	RowNumber int // 1-based, header included
	CSVColumn string
	Property  string
	RawValue  string
	Reason    string
}

func (e *ImportError) Error() string {
	if e.CSVColumn == "" {
		return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
	}
	return fmt.Sprintf("row %d, column %q -> property %q: value %q - %s",
		e.RowNumber, e.CSVColumn, e.Property, e.RawValue, e.Reason)
}

// ImportResult summarises one import run.
type ImportResult struct {
	TotalRows    int
	SuccessCount int
	FailedCount  int
	Batches      int
	KeyMappings  int
	Errors       []*ImportError
	Duration     time.Duration
}

func (r *ImportResult) Summary() string {
	return fmt.Sprintf("Import completed: %d/%d rows successful, %d failed, %d batches, duration: %v",
		r.SuccessCount, r.TotalRows, r.FailedCount, r.Batches, r.Duration)
}

// CSVImporter saves CSV rows as Added entities of one entity type, one save bundle per batch.
// A batch is atomic: one bad row fails every row of its batch.
type CSVImporter struct {
	manager    breeze.SaveManager
	entityType *breeze.EntityType
	mapper     CSVToEntityMapper
	batchSize  int
	saveOpts   []breeze.SaveOption
	logger     *zap.SugaredLogger
}

// NewCSVImporter creates an importer. A nil mapper is derived from the CSV header.
// If batchSize <= 0, defaults to 100.
func NewCSVImporter(manager breeze.SaveManager, et *breeze.EntityType, mapper CSVToEntityMapper, batchSize int, opts ...breeze.SaveOption) *CSVImporter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CSVImporter{
		manager:    manager,
		entityType: et,
		mapper:     mapper,
		batchSize:  batchSize,
		saveOpts:   opts,
		logger:     zap.S().Named("Import"),
	}
}

func (i *CSVImporter) SetLogger(logger *zap.SugaredLogger) {
	i.logger = logger
}

func (i *CSVImporter) ImportFromFile(ctx context.Context, filePath string) (*ImportResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return i.ImportFromReader(ctx, file)
}

type pendingRow struct {
	rowNum int
	key    string
	entity breeze.Entity
}

func (i *CSVImporter) ImportFromReader(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	startTime := time.Now()

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	mapper := i.mapper
	if mapper == nil {
		if mapper, err = HeaderMapper(i.entityType, header); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{Errors: make([]*ImportError, 0)}
	batch := make([]pendingRow, 0, i.batchSize)
	tempKey := 0
	rowNum := 1

	for {
		rowNum++
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			i.fail(result, &ImportError{RowNumber: rowNum, Reason: fmt.Sprintf("CSV parsing error: %v", err)})
			continue
		}
		result.TotalRows++

		csvRecord := make(map[string]string, len(header))
		for idx, col := range header {
			if idx < len(record) {
				csvRecord[col] = record[idx]
			}
		}

		values, err := mapper.MapRecord(csvRecord)
		if err != nil {
			importErr := &ImportError{RowNumber: rowNum, Reason: err.Error()}
			var mappingErr *MappingError
			if errors.As(err, &mappingErr) {
				importErr.CSVColumn = mappingErr.CSVColumn
				importErr.Property = mappingErr.Property
				importErr.RawValue = mappingErr.RawValue
				importErr.Reason = mappingErr.Reason
			}
			i.fail(result, importErr)
			continue
		}

		tempKey++
		entity := i.newEntity(values, tempKey)
		batch = append(batch, pendingRow{rowNum: rowNum, key: keyOf(i.entityType, entity), entity: entity})

		if len(batch) >= i.batchSize {
			i.processBatch(ctx, batch, result)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		i.processBatch(ctx, batch, result)
	}

	result.Duration = time.Since(startTime)
	i.logger.Info(result.Summary())
	return result, nil
}

// newEntity wraps values in an Added entity. Missing generated keys get temporary values:
// negative numbers or fresh guids.
func (i *CSVImporter) newEntity(values map[string]any, seq int) breeze.Entity {
	entity := breeze.Entity(values)
	if generatesKeys(i.entityType) {
		for _, kp := range i.entityType.KeyProperties() {
			if _, ok := entity[kp.Name]; ok {
				continue
			}
			if kp.DataType == breeze.DataTypeGuid {
				entity[kp.Name] = uuid.New().String()
			} else {
				entity[kp.Name] = float64(-seq)
			}
		}
	}
	entity[breeze.EntityAspectField] = map[string]any{
		"entityTypeName": i.entityType.QualifiedName(),
		"entityState":    string(breeze.EntityStateAdded),
	}
	return entity
}

func keyOf(et *breeze.EntityType, entity breeze.Entity) string {
	values := make([]any, 0, len(et.KeyProperties()))
	for _, kp := range et.KeyProperties() {
		values = append(values, entity[kp.Name])
	}
	return fmt.Sprint(values...)
}

func (i *CSVImporter) processBatch(ctx context.Context, batch []pendingRow, result *ImportResult) {
	result.Batches++
	bundle := &breeze.SaveBundle{Entities: make([]breeze.Entity, 0, len(batch))}
	for _, row := range batch {
		bundle.Entities = append(bundle.Entities, row.entity)
	}

	saved, err := i.manager.SaveChanges(ctx, bundle, i.saveOpts...)
	if err != nil {
		i.logger.Errorw("batch save failed", "firstRow", batch[0].rowNum, "rows", len(batch), "error", err)
		for _, row := range batch {
			i.fail(result, &ImportError{RowNumber: row.rowNum, Reason: fmt.Sprintf("batch save failed: %v", err)})
		}
		return
	}
	if saved.Failed() {
		byKey := make(map[string]breeze.EntityError, len(saved.Errors))
		for _, entityErr := range saved.Errors {
			byKey[fmt.Sprint(entityErr.KeyValues...)] = entityErr
		}
		for _, row := range batch {
			reason := "batch rejected"
			if saved.Message != "" {
				reason = "batch rejected: " + saved.Message
			}
			if entityErr, ok := byKey[row.key]; ok {
				reason = fmt.Sprintf("%s: %s", entityErr.ErrorName, entityErr.ErrorMessage)
			}
			i.fail(result, &ImportError{RowNumber: row.rowNum, Reason: reason})
		}
		return
	}

	result.SuccessCount += len(batch)
	result.KeyMappings += len(saved.KeyMappings)
	i.logger.Debugw("batch saved", "firstRow", batch[0].rowNum, "rows", len(batch), "keyMappings", len(saved.KeyMappings))
}

func (i *CSVImporter) fail(result *ImportResult, importErr *ImportError) {
	i.logger.Errorw("row not imported", "error", importErr.Error())
	result.FailedCount++
	result.Errors = append(result.Errors, importErr)
}
