package main

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/breeze"
)

// FieldMapper turns one CSV cell into a property value. Values are JSON shaped: numbers are
// float64, dates are RFC 3339 strings, so payloads look exactly like a client bundle.
type FieldMapper interface {
	Map(csvValue string) (any, error)
}

// FieldMapperFunc adapts a function to FieldMapper.
type FieldMapperFunc func(csvValue string) (any, error)

func (f FieldMapperFunc) Map(csvValue string) (any, error) {
	return f(csvValue)
}

// Identity passes the cell through unchanged.
func Identity() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) { return v, nil })
}

// Trim strips surrounding whitespace.
func Trim() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) { return strings.TrimSpace(v), nil })
}

// ToInteger parses a whole number.
func ToInteger() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer format: %v", err)
		}
		return float64(i), nil
	})
}

// ToNumber parses a decimal number.
func ToNumber() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number format: %v", err)
		}
		return f, nil
	})
}

// ToBool accepts true/false, 1/0 and yes/no in any case.
func ToBool() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		default:
			return nil, fmt.Errorf("invalid boolean value: %q (expected true/false/1/0/yes/no)", v)
		}
	})
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToDateTime parses the common ISO 8601 layouts and normalises to RFC 3339 in UTC.
func ToDateTime() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		v = strings.TrimSpace(v)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().Format(time.RFC3339Nano), nil
			}
		}
		return nil, fmt.Errorf("invalid ISO8601 datetime format: %q", v)
	})
}

// ToGuid checks the cell is a uuid.
func ToGuid() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid guid: %v", err)
		}
		return id.String(), nil
	})
}

// ToBinary checks the cell is base64.
func ToBinary() FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		v = strings.TrimSpace(v)
		if _, err := base64.StdEncoding.DecodeString(v); err != nil {
			return nil, fmt.Errorf("invalid base64 value: %v", err)
		}
		return v, nil
	})
}

// Enum restricts the cell to the allowed values.
func Enum(allowed ...string) FieldMapper {
	return FieldMapperFunc(func(v string) (any, error) {
		v = strings.TrimSpace(v)
		for _, a := range allowed {
			if v == a {
				return v, nil
			}
		}
		return nil, fmt.Errorf("invalid value %q: must be one of %v", v, allowed)
	})
}

// mapperFor picks the mapper matching a property's data type.
func mapperFor(prop *breeze.DataProperty) FieldMapper {
	switch prop.DataType {
	case breeze.DataTypeInt16, breeze.DataTypeInt32, breeze.DataTypeInt64:
		return ToInteger()
	case breeze.DataTypeDouble, breeze.DataTypeSingle, breeze.DataTypeDecimal:
		return ToNumber()
	case breeze.DataTypeBoolean:
		return ToBool()
	case breeze.DataTypeGuid:
		return ToGuid()
	case breeze.DataTypeBinary:
		return ToBinary()
	}
	if prop.DataType.IsDate() {
		return ToDateTime()
	}
	return Identity()
}
