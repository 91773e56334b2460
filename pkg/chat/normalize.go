package chat

import "encoding/json"

// EmptyResponseNotice replaces empty upstream payloads ({}, [], [{}]) so the
// user sees a diagnostic instead of literal JSON. An empty payload almost
// always means the webhook workflow has no response node configured.
const EmptyResponseNotice = "Le service de génération a renvoyé une réponse vide. Vérifie la configuration du webhook."

// Response field names carrying the textual result, in priority order.
var contentFields = []string{"response", "output", "content", "text", "message"}

// extractor attempts to pull a display string out of a payload. The second
// return reports whether it matched.
type extractor func(payload interface{}) (string, bool)

var extractors []extractor

func init() {
	extractors = []extractor{
		extractString,
		extractNamedField,
		extractFirstElement,
	}
}

// NormalizeResponse extracts a single display string from an arbitrary
// service response (object, array, or string). It always produces a string
// and never fails: unrecognized payloads fall back to their JSON
// serialization, and empty payloads become EmptyResponseNotice.
func NormalizeResponse(payload interface{}) string {
	for _, extract := range extractors {
		if s, ok := extract(payload); ok {
			return s
		}
	}
	return serializedFallback(payload)
}

func extractString(payload interface{}) (string, bool) {
	s, ok := payload.(string)
	return s, ok
}

func extractNamedField(payload interface{}) (string, bool) {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return "", false
	}
	for _, field := range contentFields {
		if s, ok := m[field].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func extractFirstElement(payload interface{}) (string, bool) {
	items, ok := payload.([]interface{})
	if !ok || len(items) == 0 {
		return "", false
	}
	return NormalizeResponse(items[0]), true
}

func serializedFallback(payload interface{}) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return EmptyResponseNotice
	}
	switch string(b) {
	case "{}", "[]", "null":
		return EmptyResponseNotice
	}
	return string(b)
}
