package llm

// System prompts for the two analysis calls. The user turn is always the
// text under analysis prefixed with "Analyze this text:".

const classifyPrompt = `You are analyzing voice notes from workers in a plumbing business to extract metadata.

Your task is to determine:
1. The INTENT of the message:
   - "job-to-be-done": If the message is about specific tasks, action items, or work that needs to be completed
   - "knowledge-document": If the message is about storing information, documenting processes, recording facts, or general knowledge
   - "other": If the message doesn't fit either category (casual conversation, questions without actionable content, etc.)

2. A TAG that summarizes the message content:
   - Should be 2-5 words describing the main topic
   - Use kebab-case format (lowercase with hyphens)
   - Must be human-readable and descriptive
   - Examples: "bathroom-renovation-materials", "leak-repair-notes", "client-meeting-summary"

Be concise and accurate in your classification.`

const extractJobPrompt = `You are assisting workers of a plumbing business to extract structured information from voice notes.

While on-site, these workers may get information about a new job, understand tasks they need to do etc., or similar.
The business has a job and project management software for managing all of this information
but it's difficult to remember all of it and the workers don't have access to the computer while on site.

This is where you come in. The workers will send a voice note to you, the text from this will be transcribed, and
you should extract all the relevant information from the transcription,
so that it's easy for an assistant to enter it into the software.

For example, this could be
- remember to purchase material for a given job
- put this date into the calendar
- check with builders or clients when they're ready

Please extract summary, the job this is about, the context for the action items, and ALL action items mentioned.

IMPORTANT: it's CRITICAL that you don't infer any items from the message. Only capture what is explicitly said!`

const extractKnowledgePrompt = `You are assisting workers of trades businesses to extract structured knowledge information from voice notes and other sources.

Experienced workers have a lot of knowledge about how to do different tasks, what works and what doesn't etc.
Your job is to listen carefully to what they say or show and then document this in a concise summary.
It's also important that you capture when and how this applies - i.e. the context of this knowledge document.`

// JSON Schemas constraining the model output. Strict: no extra properties,
// every field required.

const classifySchema = `{
	"type": "object",
	"properties": {
		"intent": {
			"type": "string",
			"enum": ["job-to-be-done", "knowledge-document", "other"],
			"description": "The intent of the message - whether it's about a job to be done, permanent knowledge, or other"
		},
		"tag": {
			"type": "string",
			"minLength": 1,
			"description": "A short kebab-case tag, 2-5 words summarizing the message content"
		}
	},
	"required": ["intent", "tag"],
	"additionalProperties": false
}`

const jobSchema = `{
	"type": "object",
	"properties": {
		"summary": {
			"type": "string",
			"description": "A concise summary of the main point in the note"
		},
		"job": {
			"type": "string",
			"description": "The specific job this is related to"
		},
		"context": {
			"type": "string",
			"description": "The background to why these action items should be done"
		},
		"action_items": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Specific tasks, next steps, and items to be registered"
		}
	},
	"required": ["summary", "job", "context", "action_items"],
	"additionalProperties": false
}`

const knowledgeSchema = `{
	"type": "object",
	"properties": {
		"title": {
			"type": "string",
			"description": "A short human-readable title"
		},
		"summary": {
			"type": "string",
			"description": "A concise summary of the key concepts"
		},
		"context": {
			"type": "string",
			"description": "The background and context around what this knowledge is about and when it applies"
		}
	},
	"required": ["title", "summary", "context"],
	"additionalProperties": false
}`
