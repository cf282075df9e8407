package ai

import (
	"fmt"
	"strings"

	"github.com/omniaweb/chatbot/conversation"
	"github.com/omniaweb/chatbot/conversation/model"
)

// historyTurns is how many recent turns are replayed to the model.
// Enough for coherence without inflating the prompt token count.
const historyTurns = 6

// systemPrompt renders the assistant instructions from the service
// catalog and whatever lead data the conversation has collected so far.
func systemPrompt(kb *conversation.KnowledgeBase, sess *conversation.Session) string {
	var b strings.Builder

	b.WriteString("Sei l'assistente virtuale di Omniaweb, azienda IT di Monza specializzata in servizi digitali per le imprese della Brianza.\n")
	b.WriteString("Rispondi sempre in italiano, in modo professionale e conciso (massimo 3 frasi).\n")
	b.WriteString("Non inventare prezzi o tempi di consegna: usa solo le fasce indicate nel catalogo.\n")
	b.WriteString("Se l'utente chiede di parlare con una persona, invitalo a chiamare lo 039 2847 101.\n\n")

	b.WriteString("Catalogo servizi:\n")
	for _, svc := range kb.Services {
		fmt.Fprintf(&b, "- %s (%s): %s\n", svc.Name, svc.PriceBand, svc.Description)
	}

	if len(sess.Lead) > 0 {
		b.WriteString("\nDati gia' raccolti sul cliente:\n")
		for field, value := range sess.Lead {
			fmt.Fprintf(&b, "- %s: %s\n", field, value)
		}
	}

	fmt.Fprintf(&b, "\nFase attuale della conversazione: %s\n", sess.CurrentStep)
	return b.String()
}

// chatMessages builds the provider message list: system instructions,
// recent history, then the new user message.
func chatMessages(kb *conversation.KnowledgeBase, sess *conversation.Session, message string) []model.Message {
	msgs := make([]model.Message, 0, historyTurns+2)
	msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: systemPrompt(kb, sess)})

	turns := sess.Turns
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}
	for _, turn := range turns {
		role := model.RoleUser
		if turn.Role == conversation.RoleBot {
			role = model.RoleAssistant
		}
		msgs = append(msgs, model.Message{Role: role, Content: turn.Text})
	}

	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: message})
	return msgs
}
