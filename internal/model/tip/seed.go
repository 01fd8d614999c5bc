package tip

// Seed 默认的每日贴士。
func Seed() []Tip {
	return []Tip{
		{ID: "01-hydrate-walk", Title: "Morning boost", Category: "energy",
			Body: "Start your day with a glass of water and a 10-minute walk to boost your energy and metabolism."},
		{ID: "02-screen-break", Title: "Rest your eyes", Category: "eyes",
			Body: "Every 20 minutes, look at something 20 feet away for 20 seconds to reduce eye strain."},
		{ID: "03-sleep-routine", Title: "Steady sleep", Category: "sleep",
			Body: "Go to bed and wake up at the same time every day, even on weekends."},
		{ID: "04-veggies", Title: "Half a plate", Category: "nutrition",
			Body: "Fill half of your plate with vegetables at lunch and dinner."},
		{ID: "05-stretch", Title: "Move often", Category: "movement",
			Body: "Stand up and stretch for a couple of minutes every hour you spend sitting."},
		{ID: "06-breathe", Title: "Slow breathing", Category: "stress",
			Body: "Take five slow breaths, counting to four in and six out, when you feel stressed."},
		{ID: "07-sun", Title: "Sun smart", Category: "outdoors",
			Body: "Wear sunscreen outdoors, even on cloudy days."},
		{ID: "08-hands", Title: "Clean hands", Category: "hygiene",
			Body: "Wash your hands for at least 20 seconds before eating."},
	}
}
