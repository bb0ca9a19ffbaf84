package domain

import "strings"

// Category is a nursing practice area an exam is drawn from.
type Category string

const (
	CategoryNP1 Category = "NP1"
	CategoryNP2 Category = "NP2"
	CategoryNP3 Category = "NP3"
	CategoryNP4 Category = "NP4"
	CategoryNP5 Category = "NP5"
)

var categoryNames = map[Category]string{
	CategoryNP1: "Fundamentals",
	CategoryNP2: "Maternal/Child",
	CategoryNP3: "Med/Surg",
	CategoryNP4: "Psych",
	CategoryNP5: "Leadership/Research",
}

// Categories lists the catalog in display order.
var Categories = []Category{CategoryNP1, CategoryNP2, CategoryNP3, CategoryNP4, CategoryNP5}

// ParseCategory normalizes s and checks it against the catalog.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := categoryNames[c]; !ok {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// Name returns the display name of the category.
func (c Category) Name() string {
	return categoryNames[c]
}

// TopicID is a registry-validated topic key.
type TopicID string

const (
	// TopicGeneral collects questions with no topic or an unknown one.
	TopicGeneral TopicID = "General"
	// TopicMedSurg is shown as the clinical competency aggregate.
	TopicMedSurg TopicID = "Medical-Surgical"
)

// PassThreshold is the inclusive percentage required to pass.
const PassThreshold = 75

// TopicRegistry resolves free-text topics to known identifiers.
type TopicRegistry struct {
	known map[string]TopicID
}

// NewTopicRegistry builds a registry from the given topic names. General is
// always present.
func NewTopicRegistry(topics ...string) *TopicRegistry {
	r := &TopicRegistry{known: make(map[string]TopicID, len(topics)+1)}
	r.known[normalizeTopic(string(TopicGeneral))] = TopicGeneral
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		r.known[normalizeTopic(t)] = TopicID(t)
	}
	return r
}

// Resolve maps a question topic to its identifier, falling back to General.
func (r *TopicRegistry) Resolve(topic string) TopicID {
	if r == nil {
		return TopicGeneral
	}
	if id, ok := r.known[normalizeTopic(topic)]; ok {
		return id
	}
	return TopicGeneral
}

func normalizeTopic(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Rank is a title earned from cumulative score.
type Rank struct {
	Title    string `json:"title"`
	MinScore int    `json:"minScore"`
}

var ranks = []Rank{
	{Title: "Top Notcher", MinScore: 301},
	{Title: "Nurse Supervisor", MinScore: 151},
	{Title: "Registered Nurse (RN)", MinScore: 51},
	{Title: "Student Nurse", MinScore: 0},
}

// RankFor returns the highest rank whose threshold score reaches.
func RankFor(score int) Rank {
	for _, r := range ranks {
		if score >= r.MinScore {
			return r
		}
	}
	return ranks[len(ranks)-1]
}
