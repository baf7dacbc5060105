package llmgateway

var semanticSectionsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category_path": map[string]any{"type": "string"},
					"content":       map[string]any{"type": "string"},
					"tags":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"volatility_class": map[string]any{
						"type": "string",
						"enum": []string{"static", "high", "medium", "low"},
					},
				},
				"required":             []string{"category_path", "content", "tags", "volatility_class"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"sections"},
	"additionalProperties": false,
}

var conflictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"resolution":   map[string]any{"type": "string", "enum": []string{"supersedes", "merges"}},
		"updated_text": map[string]any{"type": "string"},
	},
	"required":             []string{"resolution", "updated_text"},
	"additionalProperties": false,
}

func segmentationSystemPrompt(activeTaxonomy string) string {
	return "Analyze the input data. Divide it into strictly cohesive logical units. " +
		"Output the exact text for each unit into the 'content' field. " +
		"Assign a broad taxonomy path (2-4 levels) to each unit.\n\n" +
		"STRICT COHESION RULE: A unit is cohesive ONLY if it covers ONE specific sub-topic. " +
		"Psychology/ADHD and Fitness/Gym must ALWAYS be separate sections. " +
		"Never mix distinct domains (e.g., health + tech, lifestyle + projects) in a single section.\n\n" +
		"STRICT TAXONOMY RULES:\n" +
		"1. PATH SELECTION: Check the EXISTING PATHS list below. Reuse an existing path ONLY if " +
		"the content is a direct topical match. If no existing path fits, create a new one under " +
		"the correct L1 root. Do NOT force-fit content into an existing path just because it is " +
		"the closest available option. A wrong existing path is always worse than a correct new path." +
		"2. L1 ROOT DOMAINS (use ONLY these five):\n" +
		"   - 'profile': Personal identity, demographics, health, psychology, and personal habits.\n" +
		"   - 'projects': Specific work initiatives, software products (e.g., MyApp), and tasks.\n" +
		"   - 'organizations': Business entities, companies, and professional structures.\n" +
		"   - 'concepts': Abstract ideas, technology stacks, and general knowledge.\n" +
		"   - 'reference': System data, primers, and documentation.\n" +
		"   CRUCIAL: NEVER use 'user' as an L1 root. Use 'profile' instead.\n\n" +
		"3. MAPPING LOGIC:\n" +
		"   - Professional content (Sales, ICP, S3, Auth) MUST go under 'projects.<name>' or 'organizations'.\n" +
		"   - Personal content (Nutrition, Supplements, Fitness) MUST go under 'profile.lifestyle' or 'profile.health'.\n" +
		"   - NEVER mix professional tech/sales content into 'profile.health' or 'profile.lifestyle'.\n\n" +
		"4. NOTATION: Strict dot-notation. Preferred depth: 2-4 levels. Avoid hyper-specific file paths or endpoint names. " +
		"Never use 'personal' as an L2 under 'profile' (e.g. use profile.identity, not profile.personal.identity).\n\n" +
		"CHUNKING RULES: Each section MUST be at least 3 sentences or 150 words. Do NOT split a single coherent topic into micro-chunks. Prefer fewer, larger sections over many small ones. A single document should rarely exceed 5 sections.\n\n" +
		"EXISTING PATHS FOR REFERENCE:\n" + activeTaxonomy
}

const conflictSystemPrompt = "You are a strict factual arbiter enforcing absolute knowledge singularity.\n\n" +
	"PROCEDURE:\n" +
	"STEP 1 — Extract every atomic factual claim from OLD TEXT.\n" +
	"STEP 2 — Extract every atomic factual claim from NEW TEXT.\n" +
	"STEP 3 — Identify any claim in OLD TEXT that is DIRECTLY CONTRADICTED " +
	"or MUTATED by NEW TEXT (e.g. a price changed, a name changed, a date " +
	"changed, a status changed, a quantity changed, a value was corrected).\n\n" +
	"DECISION RULES — apply strictly, no exceptions:\n" +
	"• If ANY factual mutation is detected → resolution MUST be \"supersedes\". " +
	"When supersedes: updated_text MUST be the full original paragraph with the " +
	"new/corrected fact integrated into it, preserving surrounding context. " +
	"Do NOT output only the isolated changed fact.\n" +
	"• If NEW TEXT ONLY adds information without contradicting a single claim " +
	"in OLD TEXT → resolution is \"merges\". Set updated_text to a unified " +
	"text that integrates both without duplication.\n\n" +
	"CRITICAL: \"merges\" is ONLY valid when every single claim in OLD TEXT " +
	"remains fully true and uncontradicted in the context of NEW TEXT. " +
	"A single mutated fact — however minor — forces \"supersedes\". " +
	"When supersedes, updated_text must be the full original paragraph with the fact integrated, not the isolated fragment.\n\n" +
	"Output JSON with keys 'resolution' and 'updated_text'."

const userProfileSystemPrompt = "You are writing the User Context section of a system primer for an AI agent. " +
	"The agent will read this at the start of every session to understand who it is working with.\n\n" +
	"You will be given a set of memory records about the user. Write a concise, natural-language " +
	"summary of 3-6 sentences. Write it as a briefing — who this person is, what they are currently " +
	"doing, what matters to them. Do not list facts as bullet points. Do not use headers. " +
	"Do not reproduce the raw memory content. Write prose, as if briefing a colleague before a meeting.\n\n" +
	"Include: identity basics (name, age, location, occupation), active pursuits and current projects, " +
	"health or lifestyle protocols if ongoing, personality or relational traits that would affect how " +
	"an agent should interact with them.\n\n" +
	"Omit: resolved past events, granular historical detail, anything that does not affect how an agent " +
	"should approach a session today."
