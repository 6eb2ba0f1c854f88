package store

import "testing"

func TestValidStoryPoints(t *testing.T) {
	for _, p := range StoryPointScale {
		if !ValidStoryPoints(p) {
			t.Errorf("point value %d should be valid", p)
		}
	}
	for _, p := range []int{0, 4, 6, 7, 14, 22, -1} {
		if ValidStoryPoints(p) {
			t.Errorf("point value %d should be invalid", p)
		}
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{}
	u.Add(100, 40, 250.5)
	u.Add(60, 20, 100)

	if u.PromptTokens != 160 {
		t.Errorf("prompt tokens = %d, want 160", u.PromptTokens)
	}
	if u.CompletionTokens != 60 {
		t.Errorf("completion tokens = %d, want 60", u.CompletionTokens)
	}
	if u.LatencyMS != 350.5 {
		t.Errorf("latency = %v, want 350.5", u.LatencyMS)
	}
}
