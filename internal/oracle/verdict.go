package oracle

import (
	"encoding/json"
	"strings"
)

// Verdict is the oracle's structured judgment of one exchange. Passed, Score
// and Reason carry no normative meaning unless IsFinal is true; the engine
// must ignore them for state transitions (they are still logged).
type Verdict struct {
	Reply   string `json:"reply"`
	IsFinal bool   `json:"is_final"`
	Passed  bool   `json:"pass"`
	Score   int    `json:"score"`
	Reason  string `json:"reason"`
}

// Parser strategy names, reported for call logging.
const (
	ParserStrict   = "strict"
	ParserEmbedded = "embedded"
	ParserFailOpen = "fail_open"
)

type parserStrategy interface {
	name() string
	tryParse(raw string) (*Verdict, bool)
}

// parserChain is ordered: strict whole-string parse, then a tolerant scan
// for a JSON object embedded in prose, then fail-open synthesis. The last
// strategy always succeeds.
var parserChain = []parserStrategy{
	strictParser{},
	embeddedParser{},
	failOpenParser{},
}

// ParseVerdict turns raw model output into a Verdict. It never fails: when
// no JSON object is recoverable it synthesizes a non-final verdict carrying
// the raw output as the reply, so the trainee still gets a message and the
// conversation continues. Returns the verdict and the strategy that produced
// it.
func ParseVerdict(raw string) (*Verdict, string) {
	for _, p := range parserChain {
		if v, ok := p.tryParse(raw); ok {
			return v, p.name()
		}
	}
	// unreachable, failOpenParser always succeeds
	return &Verdict{Reply: raw}, ParserFailOpen
}

type strictParser struct{}

func (strictParser) name() string { return ParserStrict }

func (strictParser) tryParse(raw string) (*Verdict, bool) {
	return decodeVerdict([]byte(strings.TrimSpace(raw)))
}

type embeddedParser struct{}

func (embeddedParser) name() string { return ParserEmbedded }

// tryParse scans for balanced JSON objects in the text and accepts the first
// one that decodes and carries a "reply" key. Brace matching is string- and
// escape-aware, so nested objects and quoted braces in the reply text do not
// break extraction.
func (embeddedParser) tryParse(raw string) (*Verdict, bool) {
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		end, ok := matchObject(raw, start)
		if !ok {
			continue
		}
		if v, ok := decodeVerdict([]byte(raw[start : end+1])); ok {
			return v, true
		}
		// skip past this balanced object, it decoded but was not a verdict
		start = end
	}
	return nil, false
}

// matchObject returns the index of the brace closing the object opened at
// start.
func matchObject(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

type failOpenParser struct{}

func (failOpenParser) name() string { return ParserFailOpen }

func (failOpenParser) tryParse(raw string) (*Verdict, bool) {
	return &Verdict{
		Reply:   raw,
		IsFinal: false,
		Passed:  false,
		Score:   0,
		Reason:  "",
	}, true
}

func decodeVerdict(b []byte) (*Verdict, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, false
	}
	if _, ok := probe["reply"]; !ok {
		return nil, false
	}
	var v Verdict
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 100 {
		v.Score = 100
	}
	return &v, true
}
