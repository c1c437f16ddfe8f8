package oracle

import "testing"

func TestParseVerdictStrict(t *testing.T) {
	raw := `{"reply": "Nice opener!", "is_final": true, "pass": true, "score": 85, "reason": "clear value framing"}`
	v, parser := ParseVerdict(raw)
	if parser != ParserStrict {
		t.Fatalf("parser: want=%q got=%q", ParserStrict, parser)
	}
	if v.Reply != "Nice opener!" {
		t.Fatalf("reply: got %q", v.Reply)
	}
	if !v.IsFinal || !v.Passed {
		t.Fatalf("flags: is_final=%v pass=%v", v.IsFinal, v.Passed)
	}
	if v.Score != 85 {
		t.Fatalf("score: got %d", v.Score)
	}
}

func TestParseVerdictStrictWithLeadingWhitespace(t *testing.T) {
	raw := "\n  \t{\"reply\": \"ok\", \"is_final\": false}\n"
	_, parser := ParseVerdict(raw)
	if parser != ParserStrict {
		t.Fatalf("parser: want=%q got=%q", ParserStrict, parser)
	}
}

func TestParseVerdictEmbeddedInProse(t *testing.T) {
	raw := "Sure! Here is my grading:\n```json\n{\"reply\": \"Let me think about it.\", \"is_final\": false, \"pass\": false, \"score\": 40, \"reason\": \"\"}\n```\nLet me know if you need anything else."
	v, parser := ParseVerdict(raw)
	if parser != ParserEmbedded {
		t.Fatalf("parser: want=%q got=%q", ParserEmbedded, parser)
	}
	if v.Reply != "Let me think about it." {
		t.Fatalf("reply: got %q", v.Reply)
	}
	if v.IsFinal {
		t.Fatalf("is_final: want false")
	}
	if v.Score != 40 {
		t.Fatalf("score: got %d", v.Score)
	}
}

func TestParseVerdictEmbeddedWithNestedBracesAndEscapes(t *testing.T) {
	raw := `prefix {"meta": 1} {"reply": "She said \"deal {today}\" twice", "is_final": true, "pass": true, "score": 90, "reason": "closed {well}"} suffix`
	v, parser := ParseVerdict(raw)
	if parser != ParserEmbedded {
		t.Fatalf("parser: want=%q got=%q", ParserEmbedded, parser)
	}
	if v.Reply != `She said "deal {today}" twice` {
		t.Fatalf("reply: got %q", v.Reply)
	}
	if v.Reason != "closed {well}" {
		t.Fatalf("reason: got %q", v.Reason)
	}
}

func TestParseVerdictSkipsObjectsWithoutReplyKey(t *testing.T) {
	raw := `{"score": 10} and then {"reply": "hi", "is_final": false}`
	v, parser := ParseVerdict(raw)
	if parser != ParserEmbedded {
		t.Fatalf("parser: want=%q got=%q", ParserEmbedded, parser)
	}
	if v.Reply != "hi" {
		t.Fatalf("reply: got %q", v.Reply)
	}
}

func TestParseVerdictFailOpen(t *testing.T) {
	raw := "I am sorry, I cannot produce JSON today."
	v, parser := ParseVerdict(raw)
	if parser != ParserFailOpen {
		t.Fatalf("parser: want=%q got=%q", ParserFailOpen, parser)
	}
	if v.Reply != raw {
		t.Fatalf("reply should carry raw output, got %q", v.Reply)
	}
	if v.IsFinal || v.Passed || v.Score != 0 {
		t.Fatalf("fail-open verdict must be non-final and neutral: %+v", v)
	}
}

func TestParseVerdictFailOpenOnUnbalancedObject(t *testing.T) {
	raw := `{"reply": "never closed`
	_, parser := ParseVerdict(raw)
	if parser != ParserFailOpen {
		t.Fatalf("parser: want=%q got=%q", ParserFailOpen, parser)
	}
}

func TestParseVerdictScoreClamping(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"above_range", `{"reply": "x", "score": 250}`, 100},
		{"below_range", `{"reply": "x", "score": -5}`, 0},
		{"in_range", `{"reply": "x", "score": 55}`, 55},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, _ := ParseVerdict(tc.raw)
			if v.Score != tc.want {
				t.Fatalf("score: want=%d got=%d", tc.want, v.Score)
			}
		})
	}
}
