package analyzer

const decomposePrompt = `You are a claim decomposition system. Break the following source text into atomic information units.

For each unit, determine:
- statement: one self-contained claim, rephrased so it stands alone
- granularity: one of "paradigm", "theory", "mechanism", "causal_claim", "statistical", "observation", "data_point" (least to most falsifiable)
- granularity_confidence: 0 to 1, how sure you are about the granularity label
- temporal_scope: one of "timeless", "era", "decade", "year", "recent", "point"
- spatial_scope: one of "universal", "global", "regional", "national", "local", "specific"
- domains: broad subject areas (lowercase tags)
- concepts: specific concepts the claim is about (lowercase tags)
- falsifiability: 0 to 1, how testable the statement is
- quantitative: numeric values mentioned, as an object, or omit if none

The source has credibility %.2f on a 0-1 scale; do not let that change what you extract, only note it.

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"statement":"Deployment frequency doubled in 2024","granularity":"statistical","granularity_confidence":0.9,"temporal_scope":"year","spatial_scope":"specific","domains":["operations"],"concepts":["deployment frequency"],"falsifiability":0.85,"quantitative":{"factor":2}}]

If nothing claim-like can be extracted, respond with an empty array: []

Source text:
%s`

const comparePrompt = `Compare these two claims made at the same granularity level.

Claim A: %s
Claim B: %s

Determine:
- relationship: "agrees", "contradicts", "unrelated", or "partially_supports"
- agreement_score: 0 (total contradiction) to 1 (full agreement)
- contradiction_type: if they contradict, one of "direct", "partial", "contextual", "methodological"; otherwise omit
- confidence_impact: -1 to 1, the net evidence this pairing provides about BOTH claims (positive when they corroborate each other, negative when they conflict)
- explanation: one brief sentence

Respond ONLY with JSON, no markdown:
{"relationship":"agrees","agreement_score":0.8,"confidence_impact":0.05,"explanation":"brief reason"}`
