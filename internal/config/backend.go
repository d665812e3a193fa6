package config

import (
	"fmt"
	"math"
	"strconv"
)

// Backend stores the settings changed with `visnote config set`. Secrets are
// never written here; see SetSecret.
//
// Get returns the value as the storage holds it (JSON numbers and bools from
// the settings file, text from `defaults read`); coerce converts it to the
// key's type. Set receives an int, bool or string already parsed against the
// key's spec.
type Backend interface {
	Get(key string) (raw any, ok bool, err error)
	Set(key string, val any) error
	Delete(key string) error
}

func coerce(typ keyType, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return parseValue(typ, v)
	case int:
		switch typ {
		case kInt:
			return v, nil
		case kString:
			return strconv.Itoa(v), nil
		}
	case float64:
		switch typ {
		case kInt:
			if v < math.MinInt || v > math.MaxInt || v != math.Trunc(v) {
				return nil, fmt.Errorf("%v is not an integer in range", v)
			}
			return int(v), nil
		case kString:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	case bool:
		switch typ {
		case kBool:
			return v, nil
		case kString:
			return strconv.FormatBool(v), nil
		}
	default:
		return nil, fmt.Errorf("unsupported stored type %T", raw)
	}
	return nil, fmt.Errorf("stored %T %v does not fit a %s key", raw, raw, typ)
}

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	}
	return "string"
}
