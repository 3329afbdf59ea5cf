package analysis

import "encoding/json"

const moderationPrompt = `
You are an approval moderator for a real-time feedback pipeline. Input: a single string named "post" (%s). Follow these rules EXACTLY and return exactly one JSON object (no extra text):

1) PREPROCESSING
- Scan the post for PII (emails, URLs, phone numbers, exact addresses, national IDs, or full names intended to identify a private person).
- Ignore explicit code blocks or quoted logs when scanning for PII, but still consider them for abusive or unsafe content.

2) APPROVAL RULES
- Mark "rejected" if any of the following are present:
  A. Non-constructive rant, low-effort vent, or empty/only-PII posts.
  B. Hate, targeted harassment, or demeaning content toward protected classes or individuals.
  C. Profanity/obscene sexual language used abusively.
  D. Threats of violence or calls for harm.
  E. Coded hostile language, dog whistles, or stereotypes implying hostility.
  F. Personal Identifiable Information (emails, phone numbers, addresses, national IDs, full names).
  G. Sarcasm or passive-aggressive remarks that demean a person or group.
  H. Ambiguous mocking or condescending content reasonably interpretable as harmful.
- If none of the above apply, mark "approved".

3) OUTPUT FORMAT
- Return exactly one JSON object with a single key:
  { "approval": "<approved|rejected>" }
- Do not include any other text, commentary, or explanation.

Example outputs:
{ "approval": "approved" }
{ "approval": "rejected" }
`

var moderationSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"approval": {
			"type": "STRING",
			"enum": ["approved", "rejected"]
		}
	},
	"required": ["approval"],
	"propertyOrdering": ["approval"]
}`)

const extractionPrompt = `
You are an analytical extractor. Input:
- "content": the post text (%s)

Return exactly one JSON object:
{ "keywords": [...], "sentiment": "..." }

PROCESS:

1) PREPROCESS
- Lowercase, remove punctuation (keep internal apostrophes), collapse spaces, trim.
- Ignore <CODE_BLOCK> and <PII>.

2) KEYWORD EXTRACTION
- Extract 1-3 meaningful keywords, ordered by importance.
- Include relevant modifiers that add context:
  - Adjective + noun pairs: "slow wifi", "broken printer"
  - Important standalone nouns: "library", "cafeteria", "exam"
  - Action words when relevant: "crashing", "freezing", "loading"
- Exclude generic/stop words: good, bad, nice, great, love, hate, use, using, because, from, thing, stuff, help, thanks, thank, issue, problem, very, really, quite, just, also, but, and, the, this, that, have, has, get, got, make, made, work, works, working.
- Fix common spelling errors: "wifi" (not "wi-fi"), "lab" (not "laab"), etc.
- Keep domain-specific terms: course names, building names, specific services.

3) SENTIMENT
- Classify as "positive", "neutral", or "negative".
- Use tone, punctuation, emojis.
- Sarcasm/irony means negative.
- Short posts (5 tokens or fewer): emojis/punctuation as tie-breakers; ambiguous means neutral.

EXAMPLES:
{ "keywords": ["slow wifi", "library", "disconnecting"], "sentiment": "negative" }
{ "keywords": ["crash", "lab computer"], "sentiment": "negative" }
{ "keywords": ["cafeteria food", "delicious"], "sentiment": "positive" }
`

var extractionSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"keywords": {
			"type": "ARRAY",
			"items": {"type": "STRING"},
			"minItems": 1,
			"maxItems": 3
		},
		"sentiment": {
			"type": "STRING",
			"enum": ["positive", "neutral", "negative"]
		}
	},
	"required": ["keywords", "sentiment"],
	"propertyOrdering": ["keywords", "sentiment"]
}`)

const summaryPrompt = `
You are an AI assistant tasked with generating a clean, simple, and consistent HTML summary of user feedback. Your input is a JSON array of feedback objects named "feedback" (%s). Follow these rules EXACTLY and return exactly one JSON object.

1) ANALYSIS & SYNTHESIS
- Analyze the entire feedback array to identify the overall sentiment, key themes, actionable insights, and representative quotes.
- Synthesize the information concisely. Do not invent information or use overly complex language.

2) HTML OUTPUT STRUCTURE
- The entire summary must be a single, valid HTML string.
- Use a paragraph tag (<p>) for single-line sections like "Overall Sentiment" and "Actionable Insight".
- Place a single break tag (<br>) after the closing tag of each section, except the very last one.
- Use a <strong> tag for each section title (e.g., "Overall Sentiment:").
- For "Key Themes", state the title in a <p> tag, followed immediately by an unordered list (<ul> with <li> items).
- For "Representative Quotes", state the title in a <p> tag, followed immediately by an unordered list where each quote is an <li> item enclosed in quotation marks.

3) OUTPUT FORMAT
- Return exactly one JSON object with a single key: "summary".
- The value must be the complete HTML string on a single line with no formatting newlines inside it.
`

var summarySchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"summary": {
			"type": "STRING"
		}
	},
	"required": ["summary"],
	"propertyOrdering": ["summary"]
}`)
