// Package ner extracts candidate medical terms from transcripts. Extraction
// is best-effort: it surfaces terms for review, it does not diagnose.
package ner

import (
	"strings"
)

// Extractor pulls structured medical entities out of free text.
type Extractor interface {
	// Ready reports whether the extraction backend can accept work.
	Ready() bool
	// Extract returns an entity map for the text. Keys are entity categories,
	// values are comma-joined matched terms.
	Extract(text string) (map[string]string, error)
}

// Common veterinary diagnosis keywords matched by the lexical extractor.
var diagnosisKeywords = []string{
	"fever", "anemia", "infection", "inflammation", "arthritis",
	"dermatitis", "gastritis", "pneumonia", "diabetes", "cancer",
	"tumor", "fracture", "wound", "allergy", "parasites", "fleas",
	"ticks", "worms", "diarrhea", "vomiting", "seizure", "lameness",
	"lethargy", "elevated temperature", "temperature",
}

// Common treatment keywords matched by the lexical extractor.
var treatmentKeywords = []string{
	"antibiotic", "antibiotics", "doxycycline", "amoxicillin",
	"prednisone", "surgery", "vaccination", "medication", "treatment",
	"therapy", "rest", "diet", "exercise", "bandage", "cast",
	"fluids", "pain relief", "anti-inflammatory", "prescribed",
}

// LexicalExtractor matches a fixed veterinary vocabulary against the
// transcript. It is the fallback strategy used when no trained NER model is
// available and is always ready.
type LexicalExtractor struct{}

// NewLexicalExtractor creates a keyword-based extractor.
func NewLexicalExtractor() *LexicalExtractor {
	return &LexicalExtractor{}
}

// Ready always returns true; the keyword tables are compiled in.
func (e *LexicalExtractor) Ready() bool {
	return true
}

// Extract scans the text for known diagnosis and treatment terms.
func (e *LexicalExtractor) Extract(text string) (map[string]string, error) {
	lower := strings.ToLower(text)

	var diagnoses, treatments []string
	for _, kw := range diagnosisKeywords {
		if strings.Contains(lower, kw) {
			diagnoses = append(diagnoses, kw)
		}
	}
	for _, kw := range treatmentKeywords {
		if strings.Contains(lower, kw) {
			treatments = append(treatments, kw)
		}
	}

	return map[string]string{
		"diagnosis":         strings.Join(diagnoses, ", "),
		"treatment":         strings.Join(treatments, ", "),
		"extraction_method": "lexical",
	}, nil
}

// Count returns the number of matched terms in an entity map, ignoring
// bookkeeping keys.
func Count(entities map[string]string) int {
	n := 0
	for key, joined := range entities {
		if key == "extraction_method" || joined == "" {
			continue
		}
		n += len(strings.Split(joined, ", "))
	}
	return n
}
