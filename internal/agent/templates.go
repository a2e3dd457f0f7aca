package agent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/collabhq/collabd/internal/db"
)

// Compose renders the canned response for a task. Capability matching is
// a case-insensitive substring check of the capability name, with
// underscores read as spaces, against the task text. The first matching
// capability wins; an agent with no match gets its type's fallback.
func Compose(a *db.Agent, task string) string {
	switch a.Type {
	case db.AgentTypeDesign:
		return composeFromTable(a, task, designResponses,
			func(t string) string { return "Design suggestion: " + t },
			fmt.Sprintf("Design Assistant: I can help with color schemes, layout suggestions, and component generation. For %q, I recommend focusing on user experience and visual hierarchy.", task))
	case db.AgentTypeDevelopment:
		return composeFromTable(a, task, developmentResponses,
			func(t string) string { return "Development solution: " + t },
			fmt.Sprintf("Code Generator: I can help with React components, styling, and API integration. For %q, I recommend following React best practices and maintaining clean, readable code.", task))
	case db.AgentTypeContent:
		return composeFromTable(a, task, contentResponses,
			func(t string) string { return "Content suggestion: " + t },
			fmt.Sprintf("Content Writer: I can help with copywriting, SEO optimization, and content strategy. For %q, I recommend focusing on your audience's needs and maintaining a consistent brand voice.", task))
	case db.AgentTypeAnalysis:
		return fmt.Sprintf(`Analysis Agent: I can help analyze data, identify patterns, and provide insights. For %q, I recommend:
  - Collecting relevant data points
  - Identifying key metrics and KPIs
  - Looking for trends and patterns
  - Providing actionable recommendations
  - Creating visual representations of findings`, task)
	default:
		return fmt.Sprintf("%s: I can help with %s. For %q, I recommend considering the context and requirements carefully.",
			a.Name, strings.Join(a.Capabilities, ", "), task)
	}
}

func composeFromTable(a *db.Agent, task string, table map[string]func(string) string, generic func(string) string, fallback string) string {
	lower := strings.ToLower(task)
	for _, capability := range a.Capabilities {
		if strings.Contains(lower, strings.ReplaceAll(capability, "_", " ")) {
			if render, ok := table[capability]; ok {
				return render(task)
			}
			return generic(task)
		}
	}
	return fallback
}

var designResponses = map[string]func(string) string{
	"color_schemes": func(string) string {
		return `Here's a color scheme for your project:
  - Primary: #3B82F6 (Blue)
  - Secondary: #10B981 (Green)
  - Accent: #F59E0B (Amber)
  - Neutral: #6B7280 (Gray)
  - Background: #F9FAFB (Light Gray)`
	},
	"layout_suggestions": func(string) string {
		return `Layout suggestions for your design:
  - Use a 12-column grid system
  - Implement responsive breakpoints at 768px, 1024px, 1280px
  - Maintain 16px base spacing unit
  - Use consistent 8px spacing scale`
	},
	"component_generation": func(string) string {
		return `Component design recommendations:
  - Create reusable button variants (primary, secondary, ghost)
  - Implement consistent form field styling
  - Use consistent typography scale (12px, 14px, 16px, 20px, 24px, 32px)
  - Apply consistent border radius (4px, 8px, 12px)`
	},
}

var developmentResponses = map[string]func(string) string{
	"react_components": func(task string) string {
		name := camelCase(task)
		return fmt.Sprintf("Here's a React component for your request:\n```jsx\nimport React from 'react';\n\nconst %s = ({ className = '', ...props }) => {\n  return (\n    <div className={`component ${className}`} {...props}>\n      {/* Component implementation */}\n    </div>\n  );\n};\n\nexport default %s;\n```", name, name)
	},
	"styling": func(task string) string {
		return fmt.Sprintf("CSS styling recommendations:\n```css\n.%s {\n  display: flex;\n  flex-direction: column;\n  gap: 1rem;\n  padding: 1rem;\n  border-radius: 0.5rem;\n  background: white;\n  box-shadow: 0 1px 3px rgba(0, 0, 0, 0.1);\n}\n```", kebabCase(task))
	},
	"api_integration": func(string) string {
		return "API integration pattern:\n```javascript\nconst apiCall = async (endpoint, options = {}) => {\n  const response = await fetch(`/api/${endpoint}`, {\n    headers: {\n      'Content-Type': 'application/json',\n      'Authorization': `Bearer ${token}`\n    },\n    ...options\n  });\n\n  if (!response.ok) throw new Error('API call failed');\n  return await response.json();\n};\n```"
	},
}

var contentResponses = map[string]func(string) string{
	"copywriting": func(task string) string {
		return fmt.Sprintf(`Copywriting suggestions for %q:
  - Use clear, concise language
  - Focus on benefits rather than features
  - Include a strong call-to-action
  - Maintain consistent brand voice
  - Use active voice and short sentences`, task)
	},
	"seo_optimization": func(string) string {
		return `SEO optimization for your content:
  - Include target keywords naturally
  - Write compelling meta descriptions (150-160 characters)
  - Use proper heading hierarchy (H1, H2, H3)
  - Include internal and external links
  - Optimize for featured snippets`
	},
	"content_strategy": func(string) string {
		return `Content strategy recommendations:
  - Define your target audience
  - Create content pillars around your expertise
  - Plan content calendar with consistent publishing
  - Repurpose content across different formats
  - Measure engagement and adjust strategy`
	},
}

// camelCase turns "create button component" into "createButtonComponent".
func camelCase(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	for i, word := range words {
		runes := []rune(word)
		if i == 0 {
			runes[0] = unicode.ToLower(runes[0])
		} else {
			runes[0] = unicode.ToUpper(runes[0])
		}
		b.WriteString(string(runes))
	}
	return b.String()
}

// kebabCase turns "create ButtonComponent" into "create-button-component".
func kebabCase(s string) string {
	var b strings.Builder
	prev := rune(0)
	for _, r := range s {
		switch {
		case r == ' ' || r == '_' || r == '\t':
			if prev != '-' && b.Len() > 0 {
				b.WriteRune('-')
				prev = '-'
			}
		case unicode.IsUpper(r):
			if prev != 0 && prev != '-' && unicode.IsLower(prev) {
				b.WriteRune('-')
			}
			b.WriteRune(unicode.ToLower(r))
			prev = unicode.ToLower(r)
		default:
			b.WriteRune(r)
			prev = r
		}
	}
	return b.String()
}
