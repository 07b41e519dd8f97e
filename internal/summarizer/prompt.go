package summarizer

// The system prompt for the generation chain lives in internal/prompts
// (summarizer_system.md); NewChainGenerator loads it when no override is
// given. The templates below are the per-call user prompts.

// directPromptTemplate frames a whole-envelope summarization. Placeholders:
// compacted data, user query, total items (x4), breakdown (x2), active
// description (x2), total items.
const directPromptTemplate = `CRITICAL: Analyze this business data with EXACT count accuracy and explicit breakdown.

DATA: %s

USER QUERY: %s

MANDATORY REQUIREMENTS:
1. **TOTAL COUNT**: There are %d records total in this response
2. **EXPLICIT BREAKDOWN**: The %d total items consist of:
%s
3. **MATCHING COUNT**: %s records match the query criteria

YOUR RESPONSE MUST:
- Start with "Found %d records total, consisting of:"
- Immediately follow with the explicit breakdown:
%s
- Specifically address the user's query about %s records
- Provide business analysis
- End with "VERIFIED: %d total records analyzed"

Focus on answering the user's specific query about %s records.`

// chunkPromptTemplate frames a sub-chunk summarization. It states the local
// count and the true original total, and explicitly forbids the model from
// claiming it is looking at the full dataset. Placeholders: compacted data,
// user query, local items (x3), original total, local items.
const chunkPromptTemplate = `CRITICAL: You are analyzing a SUBSET of business data.

DATA: %s

USER QUERY: %s

IMPORTANT CONTEXT:
- This subset contains %d records
- These %d records are part of a LARGER dataset with %d TOTAL records
- DO NOT state the total count - you are only seeing a subset

YOUR RESPONSE MUST:
- Analyze ONLY these %d records from this subset
- Provide business insights about these specific records
- DO NOT claim "There are X total" - you're seeing a subset
- Focus on patterns and insights from this chunk

Analyze the business data patterns in this subset.`
