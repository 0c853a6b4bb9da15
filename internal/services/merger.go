package services

// MergeResults combines per-chunk extraction results into a single field
// mapping. For every field name seen in any chunk, the occurrence with the
// strictly greatest confidence wins; ties keep the first-seen occurrence in
// chunk-index order. A missing confidence counts as zero.
func MergeResults(results []ExtractionResult) ExtractionResult {
	merged := make(ExtractionResult)

	for _, chunk := range results {
		for name, field := range chunk {
			if field.Name == "" {
				field.Name = name
			}
			current, seen := merged[name]
			if !seen || field.Confidence > current.Confidence {
				merged[name] = field
			}
		}
	}

	return merged
}
