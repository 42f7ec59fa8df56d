package semantic

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/kalambet/specwright/internal/contract"
)

// Builder implements contract.SemanticEngine over a DOM snapshot. It is
// pure: it never touches storage or job state, and identical input yields
// byte-identical output.
type Builder struct{}

// NewBuilder returns a DOM semantic engine.
func NewBuilder() *Builder { return &Builder{} }

// ExtractModel parses domHTML and produces the semantic model: anchors in
// source order, then buttons, then inputs, each classified and given a
// sequential el_N id. The HAR trace does not influence the element model;
// it feeds the API catalog (BuildAPICatalog).
func (b *Builder) ExtractModel(ctx context.Context, jobID, domHTML string, harTrace []byte) (contract.SemanticModel, error) {
	doc, err := html.Parse(strings.NewReader(domHTML))
	if err != nil {
		return contract.SemanticModel{}, &contract.SemanticError{Op: "parse dom", Err: err}
	}

	var anchors, buttons, inputs []*html.Node
	labelsFor := map[string]string{}
	walk(doc, func(n *html.Node) {
		switch n.Data {
		case "a":
			anchors = append(anchors, n)
		case "button":
			buttons = append(buttons, n)
		case "input":
			inputs = append(inputs, n)
		case "label":
			if forID := attr(n, "for"); forID != "" {
				if text := textContent(n); text != "" {
					if _, seen := labelsFor[forID]; !seen {
						labelsFor[forID] = text
					}
				}
			}
		}
	})

	var elements []contract.SemanticElement
	counter := 1

	appendElement := func(selector, label string, c Classification) {
		elements = append(elements, contract.SemanticElement{
			ID:         fmt.Sprintf("el_%d", counter),
			Selector:   selector,
			Role:       c.Role,
			Label:      label,
			Confidence: c.Confidence,
		})
		counter++
	}

	for _, n := range append(anchors, buttons...) {
		label := textContent(n)
		if label == "" {
			label = attr(n, "aria-label")
		}
		if label == "" {
			continue
		}
		appendElement(buildSelector(n), label, Classify(label, n.Data))
	}

	for _, n := range inputs {
		label := inputLabel(n, labelsFor)
		selector := buildSelector(n)
		if label == "" {
			label = selector
		}
		appendElement(selector, label, Classify(label, n.Data))
	}

	return contract.SemanticModel{
		JobID:      jobID,
		Elements:   elements,
		Flows:      inferFlows(elements),
		Confidence: overallConfidence(elements),
	}, nil
}

// inferFlows synthesizes a single login flow when the element set carries
// all three login roles. No partial or fuzzy matching.
func inferFlows(elements []contract.SemanticElement) []contract.Flow {
	first := map[string]contract.SemanticElement{}
	for _, el := range elements {
		if _, ok := first[el.Role]; !ok {
			first[el.Role] = el
		}
	}

	username, hasUser := first[RoleUsernameInput]
	password, hasPass := first[RolePasswordInput]
	login, hasLogin := first[RoleLoginButton]
	if !hasUser || !hasPass || !hasLogin {
		return nil
	}

	return []contract.Flow{{
		ID:          "flow_login",
		Description: "Basic login flow inferred from semantic elements.",
		Steps: []contract.FlowStep{
			{Action: "fill", Target: username.ID},
			{Action: "fill", Target: password.ID},
			{Action: "click", Target: login.ID},
		},
	}}
}

func overallConfidence(elements []contract.SemanticElement) float64 {
	if len(elements) == 0 {
		return 0
	}
	var sum float64
	for _, el := range elements {
		sum += el.Confidence
	}
	return sum / float64(len(elements))
}

// buildSelector computes the deterministic selector tie-break:
// #id, else tag[name='value'], else tag.firstClassToken, else bare tag.
func buildSelector(n *html.Node) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return fmt.Sprintf("%s[name='%s']", n.Data, name)
	}
	if class := attr(n, "class"); class != "" {
		if tokens := strings.Fields(class); len(tokens) > 0 {
			return n.Data + "." + tokens[0]
		}
	}
	return n.Data
}

// inputLabel derives an input's label: associated <label for> text, then
// aria-label, then placeholder, else empty.
func inputLabel(n *html.Node, labelsFor map[string]string) string {
	if id := attr(n, "id"); id != "" {
		if text := labelsFor[id]; text != "" {
			return text
		}
	}
	if aria := attr(n, "aria-label"); aria != "" {
		return aria
	}
	return attr(n, "placeholder")
}

// walk visits element nodes in document order.
func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent gathers the visible text of a node's subtree, whitespace
// collapsed.
func textContent(n *html.Node) string {
	var parts []string
	var gather func(*html.Node)
	gather = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			gather(c)
		}
	}
	gather(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
