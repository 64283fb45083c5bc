package enrich

const jsonOnlySystem = `You are a business research analyst. Respond with a single valid JSON object and nothing else: no prose, no markdown fences.`

const orgSchema = `{
  "summary": "2-3 sentence overview of what the organization does",
  "core_business": "primary products or services",
  "target_market": "who the customers are",
  "business_model": "how the organization makes money",
  "industry_tags": ["short", "industry", "tags"],
  "technology": "notable technology or platforms, or empty",
  "industry_position": "market position relative to peers"
}`

const personSchema = `{
  "summary": "2-3 sentence professional summary",
  "functional_expertise": ["e.g. Sales", "Engineering"],
  "domain_expertise": ["e.g. Payments", "Identity Verification"],
  "seniority_level": "one of Executive, Senior, Mid-Level, Junior, Unknown",
  "years_experience_estimate": 0,
  "key_achievements": "notable accomplishments, or empty"
}`

const scrapedContentPrompt = `Analyze the homepage content of the organization "%s" (%s) and describe the business.

Return JSON with exactly this shape:
%s

Homepage content:
%s`

const liveSearchOrgPrompt = `Research the organization "%s"%s using current web sources.
Describe what it does, who it serves and how it makes money.

Return JSON with exactly this shape:
%s`

const liveSearchPersonPrompt = `Research the professional background of "%s"%s using current web sources.
%s
Return JSON with exactly this shape:
%s`

const localDataPrompt = `Using only the profile data below, describe the %s "%s". Do not invent facts; leave fields empty when the data is silent.

Return JSON with exactly this shape:
%s

Profile data:
%s`

const classifySystemPrefix = `You classify organizations and professionals against the IFT taxonomy below.
Pick the single best primary code and up to three secondary codes. Codes must be copied exactly from the taxonomy.
Respond with a single valid JSON object: {"primary": "...", "secondary": ["..."], "confidence": 0.0-1.0, "reasoning": "one sentence"}.

Taxonomy:
`

const classifyOrgPrompt = `Classify this organization.

Name: %s
Domain: %s
Profile:
%s`

const classifyPersonPrompt = `Classify this professional by the industry segments their expertise serves.

Name: %s
Functional expertise: %s
Domain expertise: %s
Seniority: %s`
