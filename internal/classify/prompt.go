package classify

// classificationPrompt is the prompt template for complexity classification.
const classificationPrompt = `Classify the complexity of this task and list the capabilities needed to complete it.

Task:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "tier": "simple|moderate|complex|expert",
  "capabilities": ["search", "analyze", "compute", "create", "synthesize"]
}

Tier guidelines:
- simple: one self-contained step, a single capability
- moderate: two or three related steps
- complex: several steps across multiple capability domains
- expert: broad multi-domain work requiring many coordinated steps

Capability guidelines:
- List only capabilities the task actually needs, from: search, analyze, compute, create, synthesize
- Order capabilities by the sequence the work would naturally happen in`
