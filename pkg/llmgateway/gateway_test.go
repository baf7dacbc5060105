package llmgateway

import "testing"

func TestStripJSONFenceRemovesMarkdownFence(t *testing.T) {
	got := stripJSONFence("```json\n{\"a\":1}\n```")
	if got != "{\"a\":1}" {
		t.Fatalf("got %q", got)
	}
}

func TestStripJSONFenceEmptyFallsBackToEmptyObject(t *testing.T) {
	if got := stripJSONFence("   "); got != "{}" {
		t.Fatalf("got %q", got)
	}
}

func TestStripJSONFencePlainJSONPassesThrough(t *testing.T) {
	if got := stripJSONFence(`{"a":1}`); got != `{"a":1}` {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateMiddleLeavesShortTextAlone(t *testing.T) {
	if got := truncateMiddle("short", 100); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateMiddleKeepsHeadAndTail(t *testing.T) {
	text := ""
	for i := 0; i < 20000; i++ {
		text += "a"
	}
	got := truncateMiddle(text, 100)
	if len(got) >= len(text) {
		t.Fatalf("expected truncated output, got length %d", len(got))
	}
	if got[:3] != "aaa" {
		t.Fatalf("expected head of original text preserved, got %q", got[:3])
	}
}

func TestFallbackSectionProducesSingleReferenceUnknown(t *testing.T) {
	sections := fallbackSection("some text")
	if len(sections) != 1 {
		t.Fatalf("expected exactly one fallback section, got %d", len(sections))
	}
	if sections[0].CategoryPath != "reference.unknown" {
		t.Fatalf("got category %q", sections[0].CategoryPath)
	}
	if sections[0].Content != "some text" {
		t.Fatalf("got content %q", sections[0].Content)
	}
	if sections[0].VolatilityClass != "low" {
		t.Fatalf("got volatility %q", sections[0].VolatilityClass)
	}
}

func TestGatewayVectorLiteralMethodMatchesFunction(t *testing.T) {
	g := &Gateway{}
	vec := []float64{0.1, 0.2, 0.3}
	if g.VectorLiteral(vec) != VectorLiteral(vec) {
		t.Fatalf("method and function form diverged")
	}
}
