package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const systemPrompt = `Tu es Julia, une assistante thérapeutique bienveillante et empathique.

Ton rôle est d'écouter les patients entre leurs séances avec leur thérapeute et de les aider à :
- Exprimer leurs émotions et pensées
- Trouver de l'apaisement
- Identifier des solutions immédiates
- Décider s'ils ont besoin de contacter leur thérapeute

Règles importantes :
- Tu ne remplaces PAS un thérapeute humain
- Tu ne poses PAS de diagnostic
- Tu encourages à consulter le thérapeute en cas de crise
- Tu restes positive et soutenante
- Tu poses des questions ouvertes pour encourager l'expression
- Tu valides les émotions sans jugement

Si tu détectes une urgence (idées suicidaires, violence), tu recommandes IMMÉDIATEMENT de contacter le thérapeute ou les urgences.`

// GeminiProvider implements Provider on top of the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider bound to the given model name.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Complete sends the transcript to the model and returns the reply along with
// an urgency signal derived from the reply text.
func (p *GeminiProvider) Complete(ctx context.Context, history []Message, pc PatientContext) (*TurnResult, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("empty history")
	}

	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt + "\n\n" + contextPrompt(pc))},
	}
	model.SetMaxOutputTokens(1024)
	model.SetTemperature(0.7)

	contents := toContents(history)
	last := contents[len(contents)-1]

	session := model.StartChat()
	session.History = contents[:len(contents)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, wrapProviderError(err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}

	return &TurnResult{
		Reply:           text,
		UrgencyDetected: DetectUrgency(text),
	}, nil
}

var jsonBlockPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// Summarize asks the model for a structured JSON digest of the transcript.
// Malformed model output falls back to a neutral summary rather than failing
// the close operation.
func (p *GeminiProvider) Summarize(ctx context.Context, history []Message) (*Summary, error) {
	var transcript strings.Builder
	for _, msg := range history {
		transcript.WriteString(msg.Sender)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Analyse cette conversation entre un patient et un assistant IA thérapeutique.

Conversation:
%s

Génère une synthèse au format JSON avec:
1. keywords: tableau de 3-5 mots-clés principaux
2. mainConcern: une phrase décrivant la préoccupation principale
3. urgencyDetected: boolean indiquant si une urgence est détectée
4. recommendedAction: suggestion d'action pour le thérapeute

Réponds UNIQUEMENT avec le JSON, rien d'autre.`, transcript.String())

	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, wrapProviderError(err)
	}

	text := responseText(resp)
	if block := jsonBlockPattern.FindString(text); block != "" {
		var s Summary
		if err := json.Unmarshal([]byte(block), &s); err == nil {
			return &s, nil
		}
	}

	return &Summary{
		Keywords:          []string{"conversation", "échange"},
		MainConcern:       "Discussion générale",
		UrgencyDetected:   false,
		RecommendedAction: "Suivi normal",
	}, nil
}

// AnalyzeNotes produces a free-text digest of uploaded session notes.
func (p *GeminiProvider) AnalyzeNotes(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`Analyse ces notes de séance thérapeutique et génère une synthèse structurée.

Notes:
%s

Génère une synthèse en français incluant:
- Points clés abordés
- Évolutions notables
- Objectifs pour la prochaine séance
- Observations importantes

Limite: 300 mots maximum.`, text)

	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", wrapProviderError(err)
	}

	out := responseText(resp)
	if out == "" {
		return "", fmt.Errorf("empty model response")
	}
	return out, nil
}

func contextPrompt(pc PatientContext) string {
	firstName := pc.FirstName
	if firstName == "" {
		firstName = "Non renseigné"
	}
	subject := pc.TherapySubject
	if subject == "" {
		subject = "Non renseigné"
	}
	lastSession := "Aucune"
	if pc.LastSessionAt != nil {
		lastSession = pc.LastSessionAt.Format("02/01/2006")
	}
	nextSession := "Non programmée"
	if pc.NextSessionAt != nil {
		nextSession = pc.NextSessionAt.Format("02/01/2006")
	}

	return fmt.Sprintf(`Contexte patient:
- Prénom: %s
- Sujet thérapie: %s
- Dernière séance: %s
- Prochaine séance: %s`, firstName, subject, lastSession, nextSession)
}

// toContents converts the transcript to Gemini roles, merging consecutive
// same-role messages because the chat API requires strict user/model
// alternation.
func toContents(history []Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range history {
		role := "model"
		if msg.Sender == "patient" {
			role = "user"
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			if txt, ok := contents[n-1].Parts[0].(genai.Text); ok {
				contents[n-1].Parts[0] = genai.Text(string(txt) + "\n" + msg.Content)
				continue
			}
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func wrapProviderError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
