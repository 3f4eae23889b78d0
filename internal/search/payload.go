package search

// Canonical payload fields with configurable synonyms.
const (
	FieldFaceImageURL = "faceImageUrl"
	FieldOriginalURL  = "originalUrl"
	FieldName         = "name"
)

// DefaultSynonyms lists the accepted upstream names per canonical field, in
// priority order. Config can replace it.
var DefaultSynonyms = map[string][]string{
	FieldFaceImageURL: {"imageUrl", "croppedImageUrl", "image_url"},
	FieldOriginalURL:  {"originalUrl", "source_url", "fullImageUrl"},
	FieldName:         {"name", "label", "display_name"},
}

// NormalizePayload maps a raw upstream payload to the canonical shape.
// For each canonical field the first synonym holding a non-empty string wins.
// The raw payload is kept as Metadata. A nil payload yields nil.
func NormalizePayload(raw map[string]any, synonyms map[string][]string) *Payload {
	if raw == nil {
		return nil
	}
	if synonyms == nil {
		synonyms = DefaultSynonyms
	}

	return &Payload{
		FaceImageURL:    firstString(raw, synonyms[FieldFaceImageURL]),
		OriginalURL:     firstString(raw, synonyms[FieldOriginalURL]),
		Name:            firstString(raw, synonyms[FieldName]),
		CroppedImageURL: stringField(raw, "croppedImageUrl"),
		FullImageURL:    stringField(raw, "fullImageUrl"),
		Metadata:        raw,
	}
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringField(raw, k); s != "" {
			return s
		}
	}
	return ""
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
