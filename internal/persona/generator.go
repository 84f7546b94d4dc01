// Package persona generates the synthetic identity an account warms up as.
package persona

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/database"
	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// Store reads and writes personas.
type Store interface {
	GetByAccount(ctx context.Context, accountID int64) (*models.Persona, error)
	Create(ctx context.Context, p models.Persona, now time.Time) (*models.Persona, error)
}

const systemPrompt = "You create realistic, varied digital personas for messaging-app users. Always answer with a single JSON object."

var promptTemplate = template.Must(template.New("persona").Option("missingkey=error").Parse(`Create a realistic persona of a Telegram user from {{.Country}}.

Variety hints for this persona (follow them):
- occupation area: {{.OccupationHint}}
- age group: {{.AgeHint}}
- one of the interests: {{.InterestHint}}

Answer with JSON only, using exactly these keys:
{
  "generated_name": "first and last name typical for {{.Country}}",
  "age": 18-65,
  "gender": "male" or "female",
  "occupation": "...",
  "city": "a real city in {{.Country}}",
  "interests": ["3 to 6 short topics"],
  "communication_style": "casual" | "formal" | "emoji_heavy",
  "activity_level": "passive" | "moderate" | "active",
  "full_description": "two sentences",
  "background_story": "two or three sentences"
}`))

var (
	occupationHints = []string{"IT and engineering", "healthcare", "education", "trade and sales", "creative work", "transport and logistics", "finance", "student", "manual trades", "hospitality"}
	ageHints        = []string{"18-24", "25-34", "35-44", "45-54", "55-65"}
	interestHints   = []string{"football", "cooking", "travel", "cryptocurrency", "gaming", "fitness", "photography", "cars", "music", "books", "gardening", "local news", "movies", "fishing"}

	communicationStyles = []string{"casual", "formal", "emoji_heavy"}
	activityLevels      = []string{"passive", "moderate", "active"}
)

type promptData struct {
	Country        string
	OccupationHint string
	AgeHint        string
	InterestHint   string
}

type payload struct {
	Name               string   `json:"generated_name"`
	Age                int      `json:"age"`
	Gender             string   `json:"gender"`
	Occupation         string   `json:"occupation"`
	City               string   `json:"city"`
	Country            string   `json:"country"`
	Interests          []string `json:"interests"`
	CommunicationStyle string   `json:"communication_style"`
	ActivityLevel      string   `json:"activity_level"`
	Description        string   `json:"full_description"`
	BackgroundStory    string   `json:"background_story"`
}

// Generator creates personas with an LLM and stores them once per account.
type Generator struct {
	llm    llm.Completer
	store  Store
	logger *slog.Logger
}

// NewGenerator creates a persona generator.
func NewGenerator(completer llm.Completer, store Store, logger *slog.Logger) *Generator {
	return &Generator{llm: completer, store: store, logger: logger}
}

// Ensure returns the account's persona, generating and storing one first if
// the account has none. An existing persona is never replaced.
func (g *Generator) Ensure(ctx context.Context, account *models.Account, now time.Time) (*models.Persona, error) {
	existing, err := g.store.GetByAccount(ctx, account.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	p := g.Generate(ctx, account)
	stored, err := g.store.Create(ctx, p, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store persona: %w", err)
	}
	g.logger.Info("persona created", "account_id", account.ID, "name", stored.Name, "country", stored.Country)
	return stored, nil
}

// Generate asks the LLM for a persona. Any LLM or decoding failure yields a
// generic fallback persona instead of an error.
func (g *Generator) Generate(ctx context.Context, account *models.Account) models.Persona {
	country := account.Country
	if country == "" {
		country = CountryFromPhone(account.PhoneNumber)
	}
	if country == "" {
		country = DefaultCountry
	}

	prompt, err := buildPrompt(promptData{
		Country:        country,
		OccupationHint: pick(occupationHints),
		AgeHint:        pick(ageHints),
		InterestHint:   pick(interestHints),
	})
	if err != nil {
		g.logger.Error("failed to build persona prompt", "account_id", account.ID, "error", err)
		return fallback(account.ID, country)
	}

	temperature := 1.0
	accountID := account.ID
	resp, err := g.llm.Complete(ctx, llm.Request{
		Operation:   llm.OperationPersona,
		AccountID:   &accountID,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: &temperature,
	})
	if err != nil {
		g.logger.Warn("persona generation failed, using fallback", "account_id", account.ID, "error", err)
		return fallback(account.ID, country)
	}

	var data payload
	if err := llm.DecodeJSON(resp.Text, &data); err != nil {
		g.logger.Warn("persona response was not valid JSON, using fallback", "account_id", account.ID, "error", err)
		return fallback(account.ID, country)
	}
	return normalize(account.ID, country, data)
}

func buildPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func normalize(accountID int64, country string, data payload) models.Persona {
	p := models.Persona{
		AccountID:          accountID,
		Name:               strings.TrimSpace(data.Name),
		Age:                min(65, max(18, data.Age)),
		Gender:             data.Gender,
		Occupation:         data.Occupation,
		City:               data.City,
		Country:            data.Country,
		CommunicationStyle: data.CommunicationStyle,
		ActivityLevel:      data.ActivityLevel,
		Description:        data.Description,
		BackgroundStory:    data.BackgroundStory,
	}
	if data.Age == 0 {
		p.Age = 30
	}
	if p.Name == "" {
		p.Name = "Unknown User"
	}
	if p.Gender != "male" && p.Gender != "female" {
		p.Gender = "male"
	}
	if p.Occupation == "" {
		p.Occupation = "employee"
	}
	if p.City == "" {
		p.City = "Unknown City"
	}
	if p.Country == "" {
		p.Country = country
	}
	if !slices.Contains(communicationStyles, p.CommunicationStyle) {
		p.CommunicationStyle = "casual"
	}
	if !slices.Contains(activityLevels, p.ActivityLevel) {
		p.ActivityLevel = "moderate"
	}

	seen := map[string]bool{}
	for _, interest := range data.Interests {
		interest = strings.TrimSpace(interest)
		key := strings.ToLower(interest)
		if interest == "" || seen[key] {
			continue
		}
		seen[key] = true
		p.Interests = append(p.Interests, interest)
	}
	if len(p.Interests) == 0 {
		p.Interests = []string{"technology"}
	}
	if p.Description == "" {
		p.Description = "A regular person using Telegram for communication."
	}
	if p.BackgroundStory == "" {
		p.BackgroundStory = "A regular Telegram user."
	}
	return p
}

var fallbackNames = map[string][]string{
	"Russia":  {"Ivan Ivanov", "Maria Petrova", "Alexey Smirnov", "Anna Kuznetsova"},
	"USA":     {"John Smith", "Mary Johnson", "Michael Brown", "Jennifer Davis"},
	"Germany": {"Hans Mueller", "Anna Schmidt", "Michael Wagner", "Sarah Fischer"},
	"Ukraine": {"Oleksandr Kovalenko", "Olena Shevchenko", "Dmytro Bondarenko", "Iryna Melnyk"},
}

func fallback(accountID int64, country string) models.Persona {
	names, ok := fallbackNames[country]
	if !ok {
		names = []string{"Alex Johnson", "Maria Smith", "Ivan Petrov", "Anna Williams"}
	}
	return models.Persona{
		AccountID:          accountID,
		Name:               pick(names),
		Age:                25 + rand.IntN(21),
		Gender:             pick([]string{"male", "female"}),
		Occupation:         pick([]string{"teacher", "doctor", "engineer", "salesperson", "driver", "accountant", "student", "manager"}),
		City:               "Unknown City",
		Country:            country,
		Interests:          []string{"technology", "news"},
		CommunicationStyle: "casual",
		ActivityLevel:      "moderate",
		Description:        "A regular person who uses Telegram for daily communication and staying informed.",
		BackgroundStory:    "A regular Telegram user looking to stay connected with friends and follow interesting content.",
	}
}

func pick(options []string) string {
	return options[rand.IntN(len(options))]
}
