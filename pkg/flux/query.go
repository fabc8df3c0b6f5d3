package flux

import (
	"fmt"
	"net/url"
)

// Params holds query parameters. Values may be scalars, slices (the key is
// repeated), or nested maps (flattened to parent[child] keys).
type Params map[string]any

// ParamsSerializer turns Params into a raw query string. The default rule set
// is EncodeParams; a caller-supplied serializer on the request config replaces
// it wholesale.
type ParamsSerializer func(Params) string

// EncodeParams is the default serialization rule set.
func EncodeParams(p Params) string {
	if len(p) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range p {
		flattenParam(values, key, value)
	}
	return values.Encode()
}

func flattenParam(values url.Values, key string, value any) {
	switch v := value.(type) {
	case nil:
	case []string:
		for _, item := range v {
			values.Add(key, item)
		}
	case []any:
		for _, item := range v {
			flattenParam(values, key, item)
		}
	case map[string]any:
		for child, item := range v {
			flattenParam(values, fmt.Sprintf("%s[%s]", key, child), item)
		}
	case Params:
		for child, item := range v {
			flattenParam(values, fmt.Sprintf("%s[%s]", key, child), item)
		}
	default:
		values.Add(key, fmt.Sprint(v))
	}
}

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
