package internal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/breeze"
)

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

func toUUID(obj any) (uuid.UUID, bool) {
	switch v := obj.(type) {
	case uuid.UUID:
		return v, true
	case *uuid.UUID:
		if v == nil {
			return uuid.Nil, false
		}
		return *v, true
	case string:
		data, err := uuid.Parse(v)
		return data, err == nil
	case *string:
		if v == nil {
			return uuid.Nil, false
		}
		data, err := uuid.Parse(*v)
		return data, err == nil
	case [16]byte:
		return uuid.UUID(v), true
	case []byte:
		// 16 raw bytes or the textual form
		if len(v) == 16 {
			data, err := uuid.FromBytes(v)
			return data, err == nil
		}
		data, err := uuid.Parse(string(v))
		return data, err == nil
	default:
		return uuid.Nil, false
	}
}

// keyString normalises a key value so that the same key compares equal whether it came from
// JSON (float64, string) or from the store (int64, uuid.UUID, []byte).
func keyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if id, err := uuid.Parse(val); err == nil {
			return id.String()
		}
		return val
	case uuid.UUID, [16]byte:
		id, _ := toUUID(val)
		return id.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return keyString(float64(val))
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return val.String()
	case []byte:
		if id, ok := toUUID(val); ok {
			return id.String()
		}
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func sameKey(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return keyString(a) == keyString(b)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date value %q", s)
}

// coerceValue converts a raw JSON value into the Go value expected by the row store.
func coerceValue(prop *breeze.DataProperty, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch {
	case prop.DataType.IsDate():
		if s, ok := value.(string); ok {
			return parseDate(s)
		}
	case prop.DataType == breeze.DataTypeInt16 || prop.DataType == breeze.DataTypeInt32 || prop.DataType == breeze.DataTypeInt64:
		return toInt64(value)
	case prop.DataType == breeze.DataTypeDouble || prop.DataType == breeze.DataTypeSingle || prop.DataType == breeze.DataTypeDecimal:
		switch v := value.(type) {
		case json.Number:
			return v.Float64()
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case prop.DataType == breeze.DataTypeGuid:
		if id, ok := toUUID(value); ok {
			return id.String(), nil
		}
	case prop.DataType == breeze.DataTypeBinary:
		if s, ok := value.(string); ok {
			return base64.StdEncoding.DecodeString(s)
		}
	}
	return value, nil
}

func toInt64(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case float32:
		return toInt64(float64(v))
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	}
	return value, nil
}
