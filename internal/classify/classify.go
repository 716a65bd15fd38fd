// Package classify assigns a category to feedback text with an ordered
// keyword table and builds issue titles from it.
package classify

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/rpggio/qasync/internal/domain/record"
)

// DefaultTitleMax is the default title budget in runes.
const DefaultTitleMax = 30

// Rule maps keywords to a category.
type Rule struct {
	Category record.Category `yaml:"category"`
	Keywords []string        `yaml:"keywords"`
}

// Policy is an ordered rule table. The first rule with a matching keyword
// wins; text matching no rule gets Default.
type Policy struct {
	Rules   []Rule          `yaml:"rules"`
	Default record.Category `yaml:"default"`
}

// DefaultPolicy returns the built-in Korean and English keyword table.
func DefaultPolicy() Policy {
	return Policy{
		Rules: []Rule{
			{
				Category: record.CategoryBug,
				Keywords: []string{"안 됨", "안됨", "에러", "깨짐", "오류", "버그", "작동", "실패", "crash", "error", "broken", "fail", "bug"},
			},
			{
				Category: record.CategoryDataError,
				Keywords: []string{"틀림", "안 맞", "중복", "잘못", "데이터", "값이", "표시", "wrong", "mismatch", "duplicate", "incorrect"},
			},
			{
				Category: record.CategoryImprovement,
				Keywords: []string{"좋겠", "개선", "추가", "제안", "하면", "있으면", "suggest", "improve", "would be nice", "wish"},
			},
		},
		Default: record.CategoryImprovement,
	}
}

// LoadPolicy reads a YAML rule table. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading classifier policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML rule table.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing classifier policy: %w", err)
	}
	if p.Default == "" {
		p.Default = record.CategoryImprovement
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks every category is known and every rule has keywords.
func (p Policy) Validate() error {
	if !p.Default.Valid() {
		return fmt.Errorf("classifier policy: unknown default category %q", p.Default)
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("classifier policy: no rules")
	}
	for i, r := range p.Rules {
		if !r.Category.Valid() {
			return fmt.Errorf("classifier policy: rule %d: unknown category %q", i, r.Category)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("classifier policy: rule %d (%s): no keywords", i, r.Category)
		}
	}
	return nil
}

// Classifier is a compiled Policy. It is safe for concurrent use.
type Classifier struct {
	rules []compiledRule
	def   record.Category
}

type compiledRule struct {
	category record.Category
	keywords []string
}

// New compiles a policy. Keywords are normalised the same way as input.
func New(p Policy) *Classifier {
	c := &Classifier{def: p.Default}
	if !c.def.Valid() {
		c.def = record.CategoryImprovement
	}
	for _, r := range p.Rules {
		cr := compiledRule{category: r.Category}
		for _, kw := range r.Keywords {
			if kw = Normalize(kw); kw != "" {
				cr.keywords = append(cr.keywords, kw)
			}
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Classify returns the category of text. Empty text gets the default.
func (c *Classifier) Classify(text string) record.Category {
	t := Normalize(text)
	if t == "" {
		return c.def
	}
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(t, kw) {
				return r.category
			}
		}
	}
	return c.def
}

// Normalize applies NFC, lowercases, and collapses whitespace runs.
func Normalize(text string) string {
	return strings.ToLower(collapse(norm.NFC.String(text)))
}

// Title returns text as a single line of at most max runes. Longer text is
// cut at the last space inside the budget, or at max runes when the budget
// holds no space. Case is kept.
func Title(text string, max int) string {
	if max <= 0 {
		max = DefaultTitleMax
	}
	t := collapse(norm.NFC.String(text))
	runes := []rune(t)
	if len(runes) <= max {
		return t
	}
	cut := runes[:max]
	// A space right after the budget means the cut already ends on a word.
	if unicode.IsSpace(runes[max]) {
		return strings.TrimRight(string(cut), " ")
	}
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return strings.TrimRight(string(cut[:i]), " ")
		}
	}
	return string(cut)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
