package catalog

import "fmt"

// 每个转盘分类生成的条目数量
const itemsPerWheelCategory = 20

type wordBank struct {
	nouns      []string
	adjectives []string
	steps      []string
}

var wheelWords = map[string]wordBank{
	CategoryWarmup: {
		nouns:      []string{"Caress", "Whisper", "Massage", "Touch", "Kiss", "Gaze", "Tease", "Wish", "Charm", "Shiver"},
		adjectives: []string{"Subtle", "Warm", "Slow", "Deep", "Mysterious", "Sweet", "Secret", "Intense", "Cool", "Vibrant"},
		steps: []string{
			"Dim the lights and set a relaxing mood.",
			"Keep eye contact for at least thirty seconds.",
			"Breathe slowly next to your partner.",
		},
	},
	CategoryDaring: {
		nouns:      []string{"Command", "Challenge", "Surrender", "Swap", "Blindfold", "Power", "Dare", "Game", "Secret", "Rule"},
		adjectives: []string{"Bold", "Risky", "Spicy", "Direct", "Surprising", "Dark", "Total", "Exciting", "Blind", "Free"},
		steps: []string{
			"Decide who leads for the next few minutes.",
			"Describe a fantasy in detail.",
			"Give clear and calm instructions.",
		},
	},
	CategoryPosition: {
		nouns:      []string{"Lotus", "Star", "Bridge", "Throne", "Link", "Embrace", "Fusion", "Rhythm", "Knot", "Balance"},
		adjectives: []string{"Inverted", "Deep", "Rhythmic", "Classic", "Modern", "Evolved", "Intimate", "Powerful", "Gentle", "Raised"},
		steps: []string{
			"Adjust until you are both comfortable.",
			"Sync your breathing with your partner.",
			"Keep a steady, unhurried pace.",
		},
	},
}

var cardChallenges = []string{
	"Tell your partner three things you admire about them.",
	"Recreate your first date in two minutes.",
	"Give a one-minute shoulder massage.",
	"Share a memory you never told anyone.",
	"Slow dance without music.",
	"Write a compliment and hide it somewhere.",
	"Hold hands in silence for one minute.",
	"Plan a surprise for next weekend.",
	"Describe your partner using only three words.",
	"Trade one chore for the whole week.",
	"Whisper your favourite song lyric.",
	"Choose tonight's dessert for your partner.",
	"Take a selfie recreating an old photo.",
	"Name a place you want to visit together.",
	"Give a compliment in a fake accent.",
	"Share the moment you knew you liked them.",
}

var (
	slotActions     = []string{"Kiss", "Tickle", "Hug", "Massage", "Whisper to", "Blow on", "Caress", "Hold"}
	slotTargets     = []string{"Neck", "Ear", "Hands", "Back", "Shoulders", "Forehead", "Cheek", "Feet"}
	slotIntensities = []string{"Gently", "Slowly", "Playfully", "Firmly", "Quickly"}
)

// DefaultItems 生成默认的内容目录
func DefaultItems() []Item {
	var items []Item
	for _, category := range WheelCategories {
		bank := wheelWords[category]
		for i := 0; i < itemsPerWheelCategory; i++ {
			noun := bank.nouns[i%len(bank.nouns)]
			// 用不同的步长组合形容词，保证名字不重复
			adjective := bank.adjectives[(i*3+i/len(bank.nouns))%len(bank.adjectives)]
			items = append(items, Item{
				ID:          fmt.Sprintf("%s-%02d", category, i+1),
				Name:        noun + " " + adjective,
				Description: bank.steps[i%len(bank.steps)],
				Category:    category,
			})
		}
	}

	for i, text := range cardChallenges {
		items = append(items, Item{
			ID:          fmt.Sprintf("card-%02d", i+1),
			Name:        fmt.Sprintf("Card %d", i+1),
			Description: text,
			Category:    CategoryCard,
		})
	}

	items = appendReel(items, CategorySlotAction, slotActions)
	items = appendReel(items, CategorySlotTarget, slotTargets)
	items = appendReel(items, CategorySlotIntensity, slotIntensities)
	return items
}

func appendReel(items []Item, category string, words []string) []Item {
	for i, w := range words {
		items = append(items, Item{
			ID:       fmt.Sprintf("%s-%02d", category, i+1),
			Name:     w,
			Category: category,
		})
	}
	return items
}
