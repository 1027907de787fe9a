package llm

import (
	"fmt"
	"strings"

	"github.com/presslens/presslens/internal/domain"
)

const contentExtractionPrompt = `You are an editorial content extractor. The text below was scraped from a news page and may contain navigation, captions, and other noise.

Extract the editorial piece itself. Respond ONLY with JSON, no markdown:
{"title":"...","lede":"...","body":"...","language":"English|French|...","outlet":"outlet name if identifiable, else empty"}

Scraped page text:
%s`

const claimExtractionPrompt = `You are a claim extraction system. Decompose the article below into discrete claims.

For each claim, determine:
- text: a self-contained statement of the claim
- kind: "factual" (checkable assertion) or "opinion" (value judgement or stance)
- sentence: 0-based index of the sentence the claim is drawn from

Respond ONLY with a JSON object. No markdown, no explanation. Example:
{"claims":[{"text":"The law passed in March","kind":"factual","sentence":0}]}

If the article contains no extractable claims, respond with {"claims":[]}

%s

Article:
%s`

const techniqueDetectionPrompt = `You are a propaganda technique classifier. For each claim below, decide which techniques from the closed vocabulary are present in how the article states it.

Vocabulary (use ONLY these tags):
%s

For each detection report:
- claim_id: the id of the claim
- technique: one tag from the vocabulary
- evidence: the exact span of article text showing the technique
- confidence: 0.0-1.0
- rationale: one sentence on why the span matches the technique

Respond ONLY with JSON, no markdown:
{"findings":[{"claim_id":1,"technique":"loaded_language","evidence":"...","confidence":0.8,"rationale":"..."}]}

If no techniques are present, respond with {"findings":[]}

%s

Claims:
%s

Article:
%s`

const biasScoringPrompt = `You are a bias estimator. Given the technique findings below, estimate the directional bias of the article.

- direction: "left", "right", or "neutral"
- score: -1.0 (strongly left) to 1.0 (strongly right), 0 meaning neutral
- confidence: 0.0-1.0

Weigh findings by their confidence; many high-confidence techniques pushing one way mean a stronger score. Respond ONLY with JSON, no markdown:
{"direction":"left|right|neutral","score":0.0,"confidence":0.0}

Findings:
%s

Article:
%s`

const synthesisPrompt = `You are a press-critique writer. Produce the human-readable rationale for the analysis below.

Write:
- summary: a short overall assessment of the article's bias and use of propaganda techniques (3-5 sentences, plain language)
- rationales: for each finding, one clear explanation a general reader can follow

Respond ONLY with JSON, no markdown:
{"summary":"...","rationales":[{"claim_id":1,"technique":"loaded_language","explanation":"..."}]}

%s

Overall leaning: %s (score %.2f, confidence %.2f)

Findings:
%s

Article:
%s`

// outletContext renders the outlet's editorial-process description for
// prompt injection, or an empty string for unknown outlets.
func outletContext(article *domain.Article) string {
	ctx := article.Metadata.Outlet.Contextualize()
	if ctx == "" {
		return ""
	}
	return "Outlet context:\n" + ctx + "\n"
}

func formatClaims(claims []domain.Claim) string {
	var sb strings.Builder
	for _, c := range claims {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", c.ID, c.Kind, c.Text)
	}
	return sb.String()
}

func formatFindings(findings []domain.Finding) string {
	var sb strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&sb, "%d. claim %d: %s (confidence %.2f), evidence: %q\n",
			i+1, f.ClaimID, f.Technique, f.Confidence, f.Evidence)
	}
	return sb.String()
}

func formatVocabulary(tax *domain.Taxonomy) string {
	var sb strings.Builder
	for _, def := range tax.Techniques {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Tag, def.Description)
	}
	return sb.String()
}

// ContentExtractionSpec builds the prompt for extracting an editorial
// from scraped page text.
func ContentExtractionSpec(pageText string) domain.PromptSpec {
	return domain.PromptSpec{
		Stage:     domain.StageContentExtraction,
		Prompt:    fmt.Sprintf(contentExtractionPrompt, pageText),
		MaxTokens: 4096,
		Schema:    extractionSchema{},
	}
}

// ClaimExtractionSpec builds the prompt for decomposing an article into
// claims.
func ClaimExtractionSpec(article *domain.Article) domain.PromptSpec {
	return domain.PromptSpec{
		Stage:     domain.StageClaimExtraction,
		Prompt:    fmt.Sprintf(claimExtractionPrompt, outletContext(article), article.Markdown()),
		MaxTokens: 2048,
		Schema:    claimSchema{},
	}
}

// TechniqueDetectionSpec builds the prompt for classifying claims
// against the technique taxonomy.
func TechniqueDetectionSpec(article *domain.Article, claims []domain.Claim, tax *domain.Taxonomy) domain.PromptSpec {
	return domain.PromptSpec{
		Stage: domain.StageTechniqueDetection,
		Prompt: fmt.Sprintf(techniqueDetectionPrompt,
			formatVocabulary(tax), outletContext(article), formatClaims(claims), article.Markdown()),
		MaxTokens: 2048,
		Schema:    techniqueSchema{taxonomy: tax},
	}
}

// BiasScoringSpec builds the prompt for aggregating findings into a
// directional bias estimate.
func BiasScoringSpec(article *domain.Article, findings []domain.Finding) domain.PromptSpec {
	return domain.PromptSpec{
		Stage:     domain.StageBiasScoring,
		Prompt:    fmt.Sprintf(biasScoringPrompt, formatFindings(findings), article.Markdown()),
		MaxTokens: 256,
		Schema:    biasSchema{},
	}
}

// SynthesisSpec builds the prompt for the per-finding rationale and
// overall summary.
func SynthesisSpec(article *domain.Article, findings []domain.Finding, leaning *domain.Leaning) domain.PromptSpec {
	return domain.PromptSpec{
		Stage: domain.StageSynthesis,
		Prompt: fmt.Sprintf(synthesisPrompt,
			outletContext(article), leaning.Direction, leaning.Score, leaning.Confidence,
			formatFindings(findings), article.Markdown()),
		MaxTokens: 2048,
		Schema:    synthesisSchema{},
	}
}
