package script

// DefaultScriptID identifies the built-in deep canvassing guide.
const DefaultScriptID = "deep-canvass"

// Seed provides the built-in scripts available without a scripts file.
func Seed() []Script {
	return []Script{
		{
			ID:          DefaultScriptID,
			Title:       "Deep canvass: paid family leave",
			Description: "Door-to-door conversation that moves from an opening rating through shared stories to a re-rating.",
			Steps: []Step{
				{
					ID:    "introduction",
					Title: "Introduction",
					Items: []Item{
						{Text: "Introduce yourself and the organization."},
						{
							Text:     "Acknowledge the voter's time.",
							Triggers: []string{"busy", "who are you", "what is this", "what's this about", "in a hurry"},
							Hint:     "Offer to keep it short and ask for just a few minutes.",
						},
					},
				},
				{
					ID:    "initial-rating",
					Title: "Initial rating",
					Items: []Item{
						{
							Text:     "Ask the voter to rate their support from 0 to 10.",
							Triggers: []string{"out of ten", "out of 10", "i'd say", "i would say", "probably a"},
							Hint:     "Repeat the number back without judging it.",
						},
						{
							Text:     "Ask why they chose that number.",
							Triggers: []string{"because", "the reason", "i guess"},
						},
					},
				},
				{
					ID:    "voter-story",
					Title: "Voter's story",
					Items: []Item{
						{
							Text:     "Ask about a time they needed care or cared for someone.",
							Triggers: []string{"my mom", "my mother", "my dad", "my father", "my wife", "my husband", "my kid", "hospital", "took care"},
							Hint:     "Ask who the person was and how it felt.",
						},
						{
							Text:     "Reflect the feelings you hear.",
							Triggers: []string{"scared", "hard", "stressful", "worried", "felt"},
						},
					},
				},
				{
					ID:    "canvasser-story",
					Title: "Canvasser's story",
					Items: []Item{
						{Text: "Share your own short story of needing time off for family."},
						{
							Text:     "Connect your story to theirs.",
							Triggers: []string{"same thing", "i get that", "that makes sense", "never thought", "i didn't know"},
						},
					},
				},
				{
					ID:    "re-rating",
					Title: "Re-rating",
					Items: []Item{
						{
							Text:     "Ask for the 0 to 10 rating again.",
							Triggers: []string{"now i'd say", "maybe a", "higher", "changed my mind", "more like"},
							Hint:     "Ask what moved them, even if the number did not change.",
						},
					},
				},
				{
					ID:    "close",
					Title: "Close",
					Items: []Item{
						{
							Text:     "Thank the voter and invite them to stay involved.",
							Triggers: []string{"thank you", "thanks", "good luck", "have a good", "take care"},
						},
					},
				},
			},
		},
	}
}
