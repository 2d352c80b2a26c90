package mailing

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"

	"github.com/mailforge/bulksender/internal/domain"
)

// TemplateService parses and renders message bodies. Parsed templates are
// cached by source, so repeated runs of the same campaign pay the parse
// cost once. Rendering is permissive: an unreferenced placeholder comes
// out as an empty string rather than an error.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // source string -> *liquid.Template
}

func NewTemplateService() *TemplateService {
	return &TemplateService{engine: liquid.NewEngine()}
}

func (s *TemplateService) parse(source string) (*liquid.Template, error) {
	if cached, ok := s.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := s.engine.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	s.cache.Store(source, tpl)
	return tpl, nil
}

// Render renders a single source string against vars.
func (s *TemplateService) Render(source string, vars map[string]interface{}) (string, error) {
	if source == "" {
		return "", nil
	}
	tpl, err := s.parse(source)
	if err != nil {
		return "", err
	}
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// MessageRenderer binds one message template, parsed through the shared
// service cache. A parse failure surfaces here, before any recipient is
// touched.
type MessageRenderer struct {
	template domain.MessageTemplate
	subject  *liquid.Template
	html     *liquid.Template
	text     *liquid.Template
}

// NewMessageRenderer parses the template's subject and bodies up front
// using svc's cache. A nil svc gets a private, uncached service.
func NewMessageRenderer(svc *TemplateService, tpl domain.MessageTemplate) (*MessageRenderer, error) {
	if svc == nil {
		svc = NewTemplateService()
	}
	r := &MessageRenderer{template: tpl}

	var err error
	if r.subject, err = svc.parse(tpl.Subject); err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}
	if tpl.HTMLBody != "" {
		if r.html, err = svc.parse(tpl.HTMLBody); err != nil {
			return nil, fmt.Errorf("parse html body: %w", err)
		}
	}
	if tpl.TextBody != "" {
		if r.text, err = svc.parse(tpl.TextBody); err != nil {
			return nil, fmt.Errorf("parse text body: %w", err)
		}
	}
	return r, nil
}

// Render personalizes the template for one lead. Custom fields shadow the
// canonical lead fields when names collide.
func (r *MessageRenderer) Render(lead *domain.Lead, attachments []string) (*domain.RenderedMessage, error) {
	vars := lead.Vars()

	subject, err := r.subject.RenderString(vars)
	if err != nil {
		return nil, fmt.Errorf("render subject for %s: %w", lead.Email, err)
	}

	msg := &domain.RenderedMessage{
		To:          lead.Email,
		ToName:      lead.DisplayName(),
		Subject:     subject,
		Attachments: attachments,
	}
	if r.html != nil {
		if msg.HTML, err = r.html.RenderString(vars); err != nil {
			return nil, fmt.Errorf("render html body for %s: %w", lead.Email, err)
		}
	}
	if r.text != nil {
		if msg.Text, err = r.text.RenderString(vars); err != nil {
			return nil, fmt.Errorf("render text body for %s: %w", lead.Email, err)
		}
	}
	return msg, nil
}
