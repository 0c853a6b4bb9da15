package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeResultsHighestConfidenceWins(t *testing.T) {
	results := []ExtractionResult{
		{
			"ownerName": {Name: "ownerName", Value: "Ahmed Al Mansouri", Confidence: 0.62},
			"issueDate": {Name: "issueDate", Value: "2024-01-15", Confidence: 0.91},
		},
		{
			"ownerName": {Name: "ownerName", Value: "Ahmed Al-Mansouri", Confidence: 0.88},
			"issueDate": {Name: "issueDate", Value: "2024-01-16", Confidence: 0.40},
		},
	}

	merged := MergeResults(results)

	assert.Equal(t, "Ahmed Al-Mansouri", merged["ownerName"].Value)
	assert.Equal(t, 0.88, merged["ownerName"].Confidence)
	assert.Equal(t, "2024-01-15", merged["issueDate"].Value)
	assert.Equal(t, 0.91, merged["issueDate"].Confidence)
}

func TestMergeResultsTieKeepsFirstSeen(t *testing.T) {
	results := []ExtractionResult{
		{"documentStatus": {Name: "documentStatus", Value: "Active", Confidence: 0.75}},
		{"documentStatus": {Name: "documentStatus", Value: "Expired", Confidence: 0.75}},
	}

	merged := MergeResults(results)

	assert.Equal(t, "Active", merged["documentStatus"].Value)
}

func TestMergeResultsUnionOfFields(t *testing.T) {
	results := []ExtractionResult{
		{"applicationNumber": {Value: "NOC-2024-001", Confidence: 0.9}},
		{"issuingAuthority": {Value: "Dubai Municipality", Confidence: 0.8}},
	}

	merged := MergeResults(results)

	assert.Len(t, merged, 2)
	// Name is backfilled from the map key when the extractor left it empty.
	assert.Equal(t, "applicationNumber", merged["applicationNumber"].Name)
	assert.Equal(t, "issuingAuthority", merged["issuingAuthority"].Name)
}

func TestMergeResultsIdempotent(t *testing.T) {
	results := []ExtractionResult{
		{"ownerName": {Name: "ownerName", Value: "Ahmed", Confidence: 0.7}},
		{"issueDate": {Name: "issueDate", Value: "2024-01-15", Confidence: 0.9}},
	}

	merged := MergeResults(results)
	again := MergeResults([]ExtractionResult{merged, merged})

	assert.Equal(t, merged, again)
}

func TestMergeResultsEmptyInput(t *testing.T) {
	assert.Empty(t, MergeResults(nil))
	assert.Empty(t, MergeResults([]ExtractionResult{{}}))
}
