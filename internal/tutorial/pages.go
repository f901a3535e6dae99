package tutorial

import "fmt"

// Page is one screen of the onboarding tutorial.
type Page struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Animation   string `json:"animation"`
}

var pages = [...]Page{
	{
		Index:       0,
		Title:       "Complete Simple Tasks",
		Description: "Finish easy tasks and surveys to earn points daily.",
		Animation:   "tutorial1",
	},
	{
		Index:       1,
		Title:       "Invite Your Friends",
		Description: "Share your referral code and earn bonus points for every friend who joins.",
		Animation:   "tutorial2",
	},
	{
		Index:       2,
		Title:       "Withdraw Your Earnings",
		Description: "Redeem your points for real cash and gift cards easily.",
		Animation:   "tutorial3",
	},
}

// Count is always 3.
func Count() int {
	return len(pages)
}

// Pages returns a copy of the tutorial pages in display order.
func Pages() []Page {
	out := make([]Page, len(pages))
	copy(out, pages[:])
	return out
}

func PageAt(i int) (Page, error) {
	if i < 0 || i >= len(pages) {
		return Page{}, fmt.Errorf("tutorial page %d out of range [0,%d)", i, len(pages))
	}
	return pages[i], nil
}
