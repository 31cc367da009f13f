package tap

import (
	"encoding/json"
	"os"
)

// DefaultCompositeEnvVar holds a JSON object of secrets referenced from config files as ${KEY}.
const DefaultCompositeEnvVar = "TAP_CLOVER_SECRETS"

type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar resolves a key from the process environment, falling back to
// the JSON object stored in the Parent variable.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if v, ok := os.LookupEnv(child); ok {
		return v, true
	}
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				v, exists := m[child]
				return v, exists
			}
			Logger().Sugar().Warnf("ignoring %s, value is not a JSON object of strings: %v", c.Parent, err)
		}
	}
	return "", false
}
