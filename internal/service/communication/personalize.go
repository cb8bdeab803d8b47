package communication

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ekklesia/commhub/internal/domain"
)

// Personalizer renders Liquid placeholders such as {{ first_name }} per
// recipient. Parsed templates are cached by body.
type Personalizer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewPersonalizer creates a personalizer with the message filters registered.
func NewPersonalizer() *Personalizer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "friend" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	return &Personalizer{engine: engine}
}

// IsTemplate reports whether message contains Liquid markup.
func (p *Personalizer) IsTemplate(message string) bool {
	return strings.Contains(message, "{{") || strings.Contains(message, "{%")
}

// Validate parses message and reports syntax errors.
func (p *Personalizer) Validate(message string) error {
	if !p.IsTemplate(message) {
		return nil
	}
	if _, err := p.template(message); err != nil {
		return err
	}
	return nil
}

// Render fills message for one recipient. contact may be nil when only the
// number is known.
func (p *Personalizer) Render(message string, phone string, contact *domain.Contact) (string, error) {
	if !p.IsTemplate(message) {
		return message, nil
	}
	tpl, err := p.template(message)
	if err != nil {
		return "", err
	}
	out, err := tpl.RenderString(bindings(phone, contact))
	if err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return out, nil
}

func (p *Personalizer) template(message string) (*liquid.Template, error) {
	if cached, ok := p.cache.Load(message); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := p.engine.ParseString(message)
	if err != nil {
		return nil, fmt.Errorf("%w: message template: %v", ErrValidation, err)
	}
	p.cache.Store(message, tpl)
	return tpl, nil
}

func bindings(phone string, c *domain.Contact) liquid.Bindings {
	b := liquid.Bindings{
		"phone":      phone,
		"name":       "",
		"first_name": "",
		"tags":       []string{},
	}
	if c == nil {
		return b
	}
	if c.Name != nil {
		b["name"] = *c.Name
		if fields := strings.Fields(*c.Name); len(fields) > 0 {
			b["first_name"] = fields[0]
		}
	}
	b["tags"] = []string(c.Tags)
	return b
}
