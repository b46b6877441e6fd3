package clue

var defaultRewardBody = []string{
	"Thank you for your participation thus far.",
	"We will be in contact.",
}

// DefaultDefinitions is the month-one clue set shipped with the portal.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Month:   1,
			Index:   1,
			Answers: []string{"This Is Your First Test"},
			Reward:  Reward{Title: "REWARD: LOYALTY", PhraseSoFar: "Loyalty", Body: defaultRewardBody},
		},
		{
			Month:   1,
			Index:   2,
			Answers: []string{"echo"},
			Reward:  Reward{Title: "REWARD: IS", PhraseSoFar: "Loyalty is", Body: defaultRewardBody},
		},
		{
			Month:   1,
			Index:   3,
			Answers: []string{"the"},
			Reward:  Reward{Title: "REWARD: THE", PhraseSoFar: "Loyalty is the", Body: defaultRewardBody},
		},
		{
			Month:   1,
			Index:   4,
			Answers: []string{"hole"},
			Reward:  Reward{Title: "REWARD: ONLY", PhraseSoFar: "Loyalty is the only", Body: defaultRewardBody},
		},
		{
			Month:   1,
			Index:   5,
			Answers: []string{"LOYALTY IS THE ONLY CURRENCY"},
			Reward: Reward{
				Title:   "Reward: LOYALTY IS THE ONLY CURRENCY",
				Heading: "Congratulations... AGENT",
				Body:    defaultRewardBody,
			},
			Final: true,
		},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultDefinitions())
	if err != nil {
		panic("clue: built-in catalog is invalid: " + err.Error())
	}
	return c
}
