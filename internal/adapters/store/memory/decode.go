package memory

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// decode copies document fields into v using the same field tags the
// production database client honours.
func decode(data map[string]any, v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "firestore",
		Result:     v,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
