package persona

// ID enumerates the built-in assistant personalities. The set is closed:
// adding a persona means adding a row to Seed, not new control flow.
type ID string

const (
	General   ID = "general"
	Code      ID = "code"
	Research  ID = "research"
	Companion ID = "companion"
)

// Persona binds one assistant personality to its model, display copy and
// UI affordances.
type Persona struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	ModelID     string `json:"modelId"`
	Placeholder string `json:"placeholder"`
	WelcomeLine string `json:"welcomeLine"`
	// Shareable controls whether completed assistant turns may be handed
	// to the save/share collaborators. Companion chats stay private.
	Shareable bool `json:"shareable"`
}

// Seed provides the built-in persona table.
func Seed() []Persona {
	return []Persona{
		{
			ID:          General,
			Name:        "SparkChat",
			Title:       "Chat Assistant",
			ModelID:     "gpt-5-nano",
			Placeholder: "Ask me anything...",
			WelcomeLine: "I'm your general chat assistant. Ask me anything and I'll do my best to help!",
			Shareable:   true,
		},
		{
			ID:          Code,
			Name:        "SparkCode",
			Title:       "Code Assistant",
			ModelID:     "claude-haiku-4-5",
			Placeholder: "Describe your coding question or paste your code...",
			WelcomeLine: "I'm your coding assistant. I can help with programming questions, debugging, and code generation!",
			Shareable:   true,
		},
		{
			ID:          Research,
			Name:        "SparkQuest",
			Title:       "Explore",
			ModelID:     "perplexity/sonar",
			Placeholder: "Ask about trends, news, or research...",
			WelcomeLine: "I'm SparkQuest. Let's explore the latest trends and developments in your field!",
			Shareable:   true,
		},
		{
			ID:          Companion,
			Name:        "Sparky",
			Title:       "Sparky - Creative Assistant",
			ModelID:     "meta-llama/llama-3.1-405b-instruct",
			Placeholder: "Share your creative challenge or idea...",
			WelcomeLine: "I'm Sparky! Let's explore creative ideas and innovative solutions together!",
			Shareable:   false,
		},
	}
}
