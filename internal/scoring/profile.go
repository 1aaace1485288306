package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes the operator the scores are computed for. It extends the
// fit table and feeds the decision engine's hard rules.
type Profile struct {
	Name             string   `yaml:"name"`
	Skills           []string `yaml:"skills"`
	IdealKeywords    []string `yaml:"ideal_keywords"`
	AvoidKeywords    []string `yaml:"avoid_keywords"`
	CompletedJobs    int      `yaml:"total_completed_jobs"`
	MinProjectBudget float64  `yaml:"min_viable_budget"`
	HourlyRate       float64  `yaml:"hourly_rate"`
	Terms            []Term   `yaml:"terms"`
}

// DefaultProfile returns the built-in operator profile.
func DefaultProfile() Profile {
	return Profile{
		Name: "operator",
		Skills: []string{
			"python", "n8n", "fastapi", "sql", "langchain", "rag", "ai agents",
			"api integration", "automation", "data extraction", "web scraping",
			"etl", "vector databases", "pinecone", "chromadb", "prompt engineering",
			"chatbot", "openai api", "automated workflows", "data pipelines",
			"google sheets", "bi dashboards", "reporting", "process automation",
			"data cleaning", "pdf extraction",
		},
		IdealKeywords: []string{
			"python", "n8n", "automation", "api integration", "data extraction",
			"web scraping", "langchain", "rag", "ai agent", "chatbot",
			"fastapi", "etl", "data pipeline", "workflow automation",
			"prompt engineering", "vector database", "sql", "reporting",
			"process automation", "openai",
		},
		AvoidKeywords: []string{
			"wordpress theme", "graphic design", "video editing",
			"social media management", "seo writing", "content writing",
			"react native", "flutter", "unity", "game development",
			"accounting", "bookkeeping",
		},
		CompletedJobs:    1,
		MinProjectBudget: 100,
		HourlyRate:       35,
	}
}

// LoadProfile reads a YAML profile. Fields missing from the file keep their
// DefaultProfile values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("load profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("load profile %s: %w", path, err)
	}
	return p, nil
}
