// Package attrs reads values back out of slog-style attribute lists.
package attrs

import "log/slog"

// ExtractString returns the string value for key in args, which follow the
// slog convention: alternating key/value pairs, optionally mixed with
// slog.Attr values. Missing keys and non-string values yield "".
func ExtractString(args []any, key string) string {
	for i := 0; i < len(args); i++ {
		switch k := args[i].(type) {
		case slog.Attr:
			if k.Key == key && k.Value.Kind() == slog.KindString {
				return k.Value.String()
			}
		case string:
			if i+1 >= len(args) {
				return ""
			}
			i++
			if k != key {
				continue
			}
			if v, ok := args[i].(string); ok {
				return v
			}
		}
	}
	return ""
}
