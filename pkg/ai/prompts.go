package ai

const QueryEntitiesPrompt = `
# Task Context
You are a helpful assistant specialized in recognizing named entities in short search queries against a knowledge graph. You will be provided with a single user query.

# Background Data
Query: "%s"

# Detailed Task Description & Rules
- Extract every named entity, concept, or domain term a knowledge graph could plausibly contain as a node.
- Keep each mention exactly as specific as the query states it. Do not merge distinct mentions and do not invent entities the query never names.
- Include multi-word mentions as single entries (e.g., "offshore wind farm" stays one mention).
- Exclude generic question words, verbs, and filler ("what", "compare", "list", "overview").
- If the query names no entities at all, return an empty list.

# Examples
Query: "How does the Alpha Ventus wind farm connect to the transmission grid?"
Output:
{
  "mentions": ["Alpha Ventus", "wind farm", "transmission grid"]
}

Query: "Summarize everything"
Output:
{
  "mentions": []
}

# Thinking Step by Step
1. Read the query and identify candidate noun phrases
2. Drop phrases that are instructions or question scaffolding rather than content
3. Keep the remaining mentions in query order

# Output Formatting
Return a JSON object with this structure:
{
  "mentions": ["<mention1>", "<mention2>"]
}
`

const ScopeClassificationPrompt = `
# Task Context
You are an assistant that routes a user query to the sections of a document collection it is about, and classifies the scope of the query for a knowledge graph retrieval system.

# Background Data
Query: "%s"

Sections:
%s

# Detailed Task Description & Rules
- Select the sections whose content the query is asking about. Use the section titles, paths, and summaries.
- Only return ids from the provided section list. Return an empty list if no section clearly matches.
- Set "multi_document" to true if answering the query requires material from more than one document (e.g., comparisons across reports, "across all projects", "in both studies").
- Set "comparison" to true if the query explicitly compares two or more things, regardless of whether they live in one document.
- Be conservative with section selection: a section is relevant if the query targets its topic, not merely if it shares a keyword.

# Examples
Query: "Compare the foundation designs used in the North Sea and Baltic Sea projects"
Output:
{
  "section_ids": ["sec-ns-foundations", "sec-bs-foundations"],
  "multi_document": true,
  "comparison": true
}

Query: "What does the maintenance chapter say about gearbox inspections?"
Output:
{
  "section_ids": ["sec-maintenance"],
  "multi_document": false,
  "comparison": false
}

# Thinking Step by Step
1. Determine what the query is actually asking for
2. Scan the section list for sections covering that topic
3. Decide whether the answer spans multiple documents or compares subjects
4. Assemble the final JSON

# Output Formatting
Return a JSON object with this structure:
{
  "section_ids": ["<id1>", "<id2>"],
  "multi_document": <bool>,
  "comparison": <bool>
}
`

const DecomposePrompt = `
# Task Context
You are an assistant that splits a complex user question into independent sub-questions for a knowledge graph retrieval system. Each sub-question is retrieved separately, so every sub-question must stand on its own.

# Background Data
Query: "%s"

# Detailed Task Description & Rules
- Produce between %d and %d sub-questions.
- Each sub-question must be self-contained: repeat the entity names instead of using pronouns ("it", "they", "the former").
- Each sub-question should target one retrievable fact or aspect of the original question.
- Together the sub-questions must cover everything the original question asks. Do not add aspects the original question never raised.
- If the question compares things, dedicate at least one sub-question to each side of the comparison.

# Examples
Query: "How do the installation costs of monopile and jacket foundations compare, and which is more common in deep water?"
Output:
{
  "sub_questions": [
    "What are the installation costs of monopile foundations?",
    "What are the installation costs of jacket foundations?",
    "Which foundation types are most common in deep water sites?"
  ]
}

# Thinking Step by Step
1. Identify the distinct facts or aspects the question asks about
2. Formulate one standalone sub-question per aspect
3. Check that no sub-question depends on another to be understood

# Output Formatting
Return a JSON object with this structure:
{
  "sub_questions": ["<question1>", "<question2>"]
}
`
