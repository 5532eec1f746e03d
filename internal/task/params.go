package task

func str(data map[string]any, key, def string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolean(data map[string]any, key string, def bool) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return def
}

func number(data map[string]any, key string, def float64) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return def
}

func strSlice(data map[string]any, key string) []string {
	v, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, e := range v {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
