package honeypot

import (
	"context"
	"log"
	"strings"
)

// Honeypot Reply Generator
//
// Produces a believable human-victim reply for a scammer turn. The persona
// shifts with conversation depth so the engagement arc reads naturally:
// confusion first, then worry, then questions, then slow-walked cooperation,
// then stalling. An LLM writes the reply when configured; canned persona
// lines are the fallback.

const minReplyLength = 12

// safetyReply is the last-resort reply when both the LLM and the canned
// line come back unusably short.
const safetyReply = "Sorry, I am a little confused about all this. My phone is acting up and " +
	"I don't fully understand what you need from me. Can you explain once more, step by step?"

// ReplyModel is the optional LLM collaborator. *llm.Client satisfies it.
type ReplyModel interface {
	VictimReply(ctx context.Context, scammerText string, recentTurns []string) (string, error)
}

type persona struct {
	name      string
	maxTurns  int // applies while messageCount <= maxTurns
	agentNote string
	responses []string
}

var personas = []persona{
	{
		name: "confused", maxTurns: 2,
		agentNote: "Early stage: playing confused to draw out intent",
		responses: []string{
			"Sorry, who is this? I don't think I know this number.",
			"I am not understanding, what is this about? Which company are you calling from?",
			"Wait, what payment? I haven't ordered anything recently.",
		},
	},
	{
		name: "worried", maxTurns: 4,
		agentNote: "Victim appears worried; scammer likely to press harder",
		responses: []string{
			"Oh no, is something wrong with my account? I am getting worried now.",
			"Please tell me clearly, will my money be safe? I have my salary in that account.",
			"This sounds serious. What exactly do I need to do?",
		},
	},
	{
		name: "questioning", maxTurns: 6,
		agentNote: "Asking verification questions to extract identifiers",
		responses: []string{
			"Before I do anything, can you tell me your name and which branch you are from?",
			"How do I know this is genuine? Can you share your employee ID or official number?",
			"Which account are you talking about exactly? I have two accounts.",
		},
	},
	{
		name: "cooperative", maxTurns: 10,
		agentNote: "Slow-walking cooperation to keep the scammer engaged",
		responses: []string{
			"Okay okay, I am trying. My internet is very slow today, please give me a minute.",
			"I am opening the app now. It is asking me so many things, where should I click?",
			"I wrote down what you said. Let me find my glasses and my other phone first.",
		},
	},
	{
		name: "stalling", maxTurns: 1 << 30,
		agentNote: "Late stage: stalling for time",
		responses: []string{
			"My phone battery is about to die, can we do this a bit later today?",
			"The app keeps showing some error. Should I go to the bank branch instead?",
			"My son usually helps me with these things. He will be home in an hour, is that okay?",
		},
	},
}

// personaForTurn picks the persona for the current conversation depth.
func personaForTurn(messageCount int) persona {
	for _, p := range personas {
		if messageCount <= p.maxTurns {
			return p
		}
	}
	return personas[len(personas)-1]
}

// Reply is one generated honeypot turn.
type Reply struct {
	Text      string `json:"reply"`
	AgentNote string `json:"agentNote"`
}

// Generator produces victim replies. A nil Model skips the LLM path.
type Generator struct {
	Model ReplyModel
}

func NewGenerator(model ReplyModel) *Generator {
	return &Generator{Model: model}
}

// Generate returns a reply for the scammer's latest message. messageCount is
// the number of scammer turns so far; recentTurns is short context for the
// model, oldest first.
func (g *Generator) Generate(ctx context.Context, scammerText string, messageCount int, recentTurns []string) Reply {
	p := personaForTurn(messageCount)

	if g.Model != nil {
		text, err := g.Model.VictimReply(ctx, scammerText, recentTurns)
		if err != nil {
			log.Printf("[Honeypot] LLM reply failed, using canned persona line: %v", err)
		} else if len(strings.TrimSpace(text)) >= minReplyLength {
			return Reply{Text: strings.TrimSpace(text), AgentNote: p.agentNote}
		}
	}

	canned := p.responses[messageCount%len(p.responses)]
	if len(canned) < minReplyLength {
		canned = safetyReply
	}
	return Reply{Text: canned, AgentNote: p.agentNote}
}
